package dates

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDates(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dates Suite")
}

var _ = Describe("Normalize", func() {
	When("the input is already canonical", func() {
		It("should return it unchanged", func() {
			Expect(Normalize("2023-06-01")).To(Equal("2023-06-01"))
			Expect(Normalize("2024-02-29")).To(Equal("2024-02-29"))
			Expect(Normalize("1999-12-31")).To(Equal("1999-12-31"))
		})

		It("should reject impossible calendar dates", func() {
			// 2023 is not a leap year; falls through to the default
			expectedToday := time.Now().UTC().Format("2006-01-02")
			Expect(Normalize("2023-02-30")).To(Equal(expectedToday))
		})
	})

	When("the input is a timestamp", func() {
		It("should keep only the date component", func() {
			Expect(Normalize("2023-06-01T14:30:00Z")).To(Equal("2023-06-01"))
			Expect(Normalize("2023-06-01T14:30:00+02:00")).To(Equal("2023-06-01"))
			Expect(Normalize("2023-06-01 14:30:00")).To(Equal("2023-06-01"))
		})
	})

	When("the input uses a locale pattern", func() {
		It("should parse slash-delimited US dates", func() {
			Expect(Normalize("6/1/2023")).To(Equal("2023-06-01"))
			Expect(Normalize("06/01/2023")).To(Equal("2023-06-01"))
			Expect(Normalize("12/25/2023")).To(Equal("2023-12-25"))
		})

		It("should parse dash-delimited US dates", func() {
			Expect(Normalize("06-01-2023")).To(Equal("2023-06-01"))
		})

		It("should parse two-digit years", func() {
			Expect(Normalize("6/1/23")).To(Equal("2023-06-01"))
		})

		It("should parse month-name dates", func() {
			Expect(Normalize("June 1, 2023")).To(Equal("2023-06-01"))
			Expect(Normalize("Jun 1, 2023")).To(Equal("2023-06-01"))
			Expect(Normalize("1 June 2023")).To(Equal("2023-06-01"))
			Expect(Normalize("Jun 1 2023")).To(Equal("2023-06-01"))
		})

		It("should strip ordinal suffixes", func() {
			Expect(Normalize("June 1st, 2023")).To(Equal("2023-06-01"))
			Expect(Normalize("March 22nd, 2024")).To(Equal("2024-03-22"))
			Expect(Normalize("May 3rd 2024")).To(Equal("2024-05-03"))
			Expect(Normalize("August 14th, 2024")).To(Equal("2024-08-14"))
		})

		It("should parse year-first slash dates", func() {
			Expect(Normalize("2023/06/01")).To(Equal("2023-06-01"))
		})
	})

	When("the input is a millisecond epoch", func() {
		It("should convert it to a UTC date", func() {
			// 2023-06-01T00:00:00Z
			Expect(Normalize("1685577600000")).To(Equal("2023-06-01"))
		})

		It("should ignore non-positive values", func() {
			expectedToday := time.Now().UTC().Format("2006-01-02")
			Expect(Normalize("-1685577600000")).To(Equal(expectedToday))
			Expect(Normalize("0")).To(Equal(expectedToday))
		})
	})

	When("the input is unparsable", func() {
		It("should default to today's date", func() {
			expectedToday := time.Now().UTC().Format("2006-01-02")
			Expect(Normalize("")).To(Equal(expectedToday))
			Expect(Normalize("not a date")).To(Equal(expectedToday))
			Expect(Normalize("   ")).To(Equal(expectedToday))
		})
	})
})

var _ = Describe("NormalizeValue", func() {
	It("should normalize strings without flagging", func() {
		date, fellBack := NormalizeValue("6/1/2023")
		Expect(fellBack).To(BeFalse())
		Expect(date).To(Equal("2023-06-01"))
	})

	It("should treat numeric values as millisecond epochs", func() {
		date, fellBack := NormalizeValue(float64(1685577600000))
		Expect(fellBack).To(BeFalse())
		Expect(date).To(Equal("2023-06-01"))
	})

	It("should flag unparsable strings", func() {
		date, fellBack := NormalizeValue("not a date")
		Expect(fellBack).To(BeTrue())
		Expect(date).To(Equal(time.Now().UTC().Format("2006-01-02")))
	})

	It("should flag unmodeled values and fall back to today", func() {
		date, fellBack := NormalizeValue(nil)
		Expect(fellBack).To(BeTrue())
		Expect(date).To(Equal(time.Now().UTC().Format("2006-01-02")))

		date, fellBack = NormalizeValue(map[string]any{"weird": true})
		Expect(fellBack).To(BeTrue())
		Expect(date).To(Equal(time.Now().UTC().Format("2006-01-02")))
	})
})

var _ = Describe("MonthBounds", func() {
	It("should return inclusive calendar bounds", func() {
		first, last := MonthBounds(2023, time.June)
		Expect(first).To(Equal("2023-06-01"))
		Expect(last).To(Equal("2023-06-30"))
	})

	It("should handle leap-year February", func() {
		first, last := MonthBounds(2024, time.February)
		Expect(first).To(Equal("2024-02-01"))
		Expect(last).To(Equal("2024-02-29"))
	})

	It("should handle non-leap February", func() {
		_, last := MonthBounds(2023, time.February)
		Expect(last).To(Equal("2023-02-28"))
	})

	It("should handle December", func() {
		first, last := MonthBounds(2024, time.December)
		Expect(first).To(Equal("2024-12-01"))
		Expect(last).To(Equal("2024-12-31"))
	})
})

var _ = Describe("ParseYMD", func() {
	It("should parse at midnight UTC", func() {
		t, err := ParseYMD("2024-02-29")
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)))
	})

	It("should reject malformed input", func() {
		_, err := ParseYMD("02/29/2024")
		Expect(err).To(HaveOccurred())
	})
})
