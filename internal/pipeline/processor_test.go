package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lensworks/invoicelens/internal/ai"
	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/repository"
)

func TestPipeline(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipeline Suite")
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStages struct {
	mu sync.Mutex

	extractResult ai.ExtractResult
	extractErr    error
	summary       string
	summaryErr    error
	categories    []string
	categorizeErr error
	recurrence    ai.RecurrenceResult
	recurrenceErr error
	embedding     []float32
	embedErr      error

	calls map[string]int
}

func newFakeStages() *fakeStages {
	return &fakeStages{
		extractResult: ai.ExtractResult{
			Vendor: "Linode",
			Date:   "6/1/2023",
			Total:  42.5,
			LineItems: []entity.LineItem{
				{Description: "Shared instance", Amount: 40},
				{Description: "Backups", Amount: 2.5},
			},
		},
		summary:    "Linode invoice for June hosting totaling $42.50.",
		categories: []string{"Cloud Services"},
		recurrence: ai.RecurrenceResult{IsLikelyRecurring: true, Reasoning: "monthly hosting charge"},
		embedding:  []float32{0.1, 0.2, 0.3},
		calls:      map[string]int{},
	}
}

func (f *fakeStages) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeStages) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStages) Extract(_ context.Context, _ ai.ExtractInput) (ai.ExtractResult, error) {
	f.record("extract")
	return f.extractResult, f.extractErr
}

func (f *fakeStages) Summarize(_ context.Context, _ ai.SummarizeInput) (string, error) {
	f.record("summarize")
	return f.summary, f.summaryErr
}

func (f *fakeStages) Categorize(_ context.Context, _ ai.CategorizeInput) ([]string, error) {
	f.record("categorize")
	return f.categories, f.categorizeErr
}

func (f *fakeStages) DetectRecurrence(_ context.Context, _ ai.RecurrenceInput) (ai.RecurrenceResult, error) {
	f.record("recurrence")
	return f.recurrence, f.recurrenceErr
}

func (f *fakeStages) Embed(_ context.Context, _ string) ([]float32, error) {
	f.record("embed")
	return f.embedding, f.embedErr
}

type fakeRepo struct {
	mu        sync.Mutex
	inserted  []*entity.Invoice
	insertErr error
	records   map[primitive.ObjectID]*entity.Invoice
	replaced  map[primitive.ObjectID]*entity.Invoice
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records:  map[primitive.ObjectID]*entity.Invoice{},
		replaced: map[primitive.ObjectID]*entity.Invoice{},
	}
}

func (f *fakeRepo) Insert(_ context.Context, inv *entity.Invoice) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return primitive.NilObjectID, f.insertErr
	}
	if inv.ID.IsZero() {
		inv.ID = primitive.NewObjectID()
	}
	f.inserted = append(f.inserted, inv)
	f.records[inv.ID] = inv
	return inv.ID, nil
}

func (f *fakeRepo) GetByID(_ context.Context, tenantID string, id primitive.ObjectID) (*entity.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.records[id]
	if !ok || inv.TenantID != tenantID || inv.IsDeleted {
		return nil, common.NewAppError("NOT_FOUND", "invoice not found", common.ErrNotFound)
	}
	return inv, nil
}

func (f *fakeRepo) ListByTenant(_ context.Context, _ string) ([]*entity.Invoice, error) {
	return nil, nil
}

func (f *fakeRepo) ListByDateRange(_ context.Context, _, _, _ string) ([]*entity.Invoice, error) {
	return nil, nil
}

func (f *fakeRepo) VectorSearch(_ context.Context, _ string, _ []float32, _, _ int) ([]repository.ScoredInvoice, error) {
	return nil, nil
}

func (f *fakeRepo) SoftDelete(_ context.Context, _ string, _ primitive.ObjectID) error {
	return nil
}

func (f *fakeRepo) Replace(_ context.Context, tenantID string, id primitive.ObjectID, inv *entity.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv.ID = id
	inv.TenantID = tenantID
	f.replaced[id] = inv
	f.records[id] = inv
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	err     error
	uploads int
}

func (f *fakeStore) Upload(_ context.Context, _ []byte, p, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.err != nil {
		return "", f.err
	}
	return "file:///blobs/" + p, nil
}

func (f *fakeStore) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

var _ = Describe("Processor", func() {
	var (
		stages *fakeStages
		repo   *fakeRepo
		store  *fakeStore
		proc   *Processor
		req    IngestRequest
	)

	BeforeEach(func() {
		stages = newFakeStages()
		repo = newFakeRepo()
		store = &fakeStore{}
		proc = NewProcessor(stages, repo, store, 1<<20, discard)
		req = IngestRequest{
			TenantID: "acme",
			FileName: "june.pdf",
			MimeType: "application/pdf",
			Data:     []byte("%PDF-1.4 fake"),
		}
	})

	Describe("IngestFile", func() {
		When("every stage succeeds", func() {
			It("should persist exactly one fully enriched record", func() {
				inv, err := proc.IngestFile(context.Background(), req)

				Expect(err).NotTo(HaveOccurred())
				Expect(repo.inserted).To(HaveLen(1))
				Expect(inv.Vendor).To(Equal("Linode"))
				Expect(inv.Date).To(Equal("2023-06-01"))
				Expect(inv.Total).To(Equal(42.5))
				Expect(inv.Summary).To(Equal(stages.summary))
				Expect(inv.Categories).To(Equal([]string{"Cloud Services"}))
				Expect(inv.IsLikelyRecurring).NotTo(BeNil())
				Expect(*inv.IsLikelyRecurring).To(BeTrue())
				Expect(inv.SummaryEmbedding).To(Equal([]float32{0.1, 0.2, 0.3}))
				Expect(inv.SourceFileURI).To(Equal("file:///blobs/acme/june.pdf"))
				Expect(inv.UploadedAt).NotTo(BeZero())
				Expect(inv.IsDeleted).To(BeFalse())
			})
		})

		When("extraction fails", func() {
			It("should abort without writing any record", func() {
				stages.extractErr = errors.New("unreadable scan")

				_, err := proc.IngestFile(context.Background(), req)

				var se *StageError
				Expect(errors.As(err, &se)).To(BeTrue())
				Expect(se.Stage).To(Equal(StageExtract))
				Expect(se.Severity).To(Equal(SeverityFatal))
				Expect(repo.inserted).To(BeEmpty())
			})
		})

		When("summarization fails", func() {
			It("should abort without writing any record", func() {
				stages.summaryErr = errors.New("model unavailable")

				_, err := proc.IngestFile(context.Background(), req)

				var se *StageError
				Expect(errors.As(err, &se)).To(BeTrue())
				Expect(se.Stage).To(Equal(StageSummarize))
				Expect(repo.inserted).To(BeEmpty())
			})
		})

		When("categorization fails", func() {
			It("should fall back to Uncategorized and still persist", func() {
				stages.categorizeErr = errors.New("rate limited")

				inv, err := proc.IngestFile(context.Background(), req)

				Expect(err).NotTo(HaveOccurred())
				Expect(inv.Categories).To(Equal([]string{"Uncategorized"}))
				Expect(repo.inserted).To(HaveLen(1))
			})
		})

		When("categorization succeeds with an empty list", func() {
			It("should default to General Expense", func() {
				stages.categories = []string{"", "  "}

				inv, err := proc.IngestFile(context.Background(), req)

				Expect(err).NotTo(HaveOccurred())
				Expect(inv.Categories).To(Equal([]string{"General Expense"}))
			})
		})

		When("recurrence detection fails", func() {
			It("should record the invoice as not recurring", func() {
				stages.recurrenceErr = errors.New("rate limited")

				inv, err := proc.IngestFile(context.Background(), req)

				Expect(err).NotTo(HaveOccurred())
				Expect(inv.IsLikelyRecurring).NotTo(BeNil())
				Expect(*inv.IsLikelyRecurring).To(BeFalse())
				Expect(inv.RecurrenceReasoning).To(BeEmpty())
			})
		})

		When("embedding fails", func() {
			It("should persist the record without a vector", func() {
				stages.embedErr = errors.New("embeddings down")

				inv, err := proc.IngestFile(context.Background(), req)

				Expect(err).NotTo(HaveOccurred())
				Expect(inv.HasEmbedding()).To(BeFalse())
				Expect(repo.inserted).To(HaveLen(1))
				Expect(repo.inserted[0].Summary).NotTo(BeEmpty())
			})
		})

		When("the blob upload fails", func() {
			It("should persist the record without a source file pointer", func() {
				store.err = errors.New("disk full")

				inv, err := proc.IngestFile(context.Background(), req)

				Expect(err).NotTo(HaveOccurred())
				Expect(inv.SourceFileURI).To(BeEmpty())
				Expect(repo.inserted).To(HaveLen(1))
			})
		})

		When("the insert fails", func() {
			It("should surface a fatal persist error", func() {
				repo.insertErr = errors.New("connection reset")

				_, err := proc.IngestFile(context.Background(), req)

				var se *StageError
				Expect(errors.As(err, &se)).To(BeTrue())
				Expect(se.Stage).To(Equal(StagePersist))
			})
		})

		When("the file type is unsupported", func() {
			It("should reject before calling any stage", func() {
				req.MimeType = "text/csv"

				_, err := proc.IngestFile(context.Background(), req)

				Expect(errors.Is(err, common.ErrValidation)).To(BeTrue())
				Expect(stages.count("extract")).To(BeZero())
				Expect(repo.inserted).To(BeEmpty())
			})
		})

		When("the file exceeds the size limit", func() {
			It("should reject before calling any stage", func() {
				proc = NewProcessor(stages, repo, store, 4, discard)

				_, err := proc.IngestFile(context.Background(), req)

				Expect(errors.Is(err, common.ErrValidation)).To(BeTrue())
				Expect(stages.count("extract")).To(BeZero())
			})
		})

		When("extraction returns no line items", func() {
			It("should persist an empty, non-nil sequence", func() {
				stages.extractResult.LineItems = nil

				inv, err := proc.IngestFile(context.Background(), req)

				Expect(err).NotTo(HaveOccurred())
				Expect(inv.LineItems).NotTo(BeNil())
				Expect(inv.LineItems).To(BeEmpty())
			})
		})
	})

	Describe("IngestManual", func() {
		var entry ManualEntry

		BeforeEach(func() {
			entry = ManualEntry{
				TenantID: "acme",
				Vendor:   "Landlord LLC",
				Date:     "2023-06-01",
				Total:    1200,
				LineItems: []entity.LineItem{
					{Description: "Office rent", Amount: 1200},
				},
				Categories: []string{"Rent & Facilities"},
			}
		})

		It("should skip extraction entirely", func() {
			_, err := proc.IngestManual(context.Background(), entry)

			Expect(err).NotTo(HaveOccurred())
			Expect(stages.count("extract")).To(BeZero())
		})

		It("should keep supplied categories verbatim without consulting the categorizer", func() {
			inv, err := proc.IngestManual(context.Background(), entry)

			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Categories).To(Equal([]string{"Rent & Facilities"}))
			Expect(stages.count("categorize")).To(BeZero())
		})

		It("should consult the categorizer when no categories are supplied", func() {
			entry.Categories = nil

			inv, err := proc.IngestManual(context.Background(), entry)

			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Categories).To(Equal([]string{"Cloud Services"}))
			Expect(stages.count("categorize")).To(Equal(1))
		})

		It("should fall back to Uncategorized when supplied categories trim to nothing", func() {
			entry.Categories = []string{"", "   "}

			inv, err := proc.IngestManual(context.Background(), entry)

			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Categories).To(Equal([]string{"Uncategorized"}))
			Expect(stages.count("categorize")).To(BeZero())
		})

		It("should label the record as a manual entry when no file name is given", func() {
			inv, err := proc.IngestManual(context.Background(), entry)

			Expect(err).NotTo(HaveOccurred())
			Expect(inv.FileName).To(Equal("manual entry"))
		})

		It("should reject a blank vendor", func() {
			entry.Vendor = "  "

			_, err := proc.IngestManual(context.Background(), entry)

			Expect(errors.Is(err, common.ErrValidation)).To(BeTrue())
			Expect(repo.inserted).To(BeEmpty())
		})

		It("should reject a negative total", func() {
			entry.Total = -10

			_, err := proc.IngestManual(context.Background(), entry)

			Expect(errors.Is(err, common.ErrValidation)).To(BeTrue())
		})

		It("should reject an absurdly long vendor name", func() {
			entry.Vendor = strings.Repeat("x", 300)

			_, err := proc.IngestManual(context.Background(), entry)

			Expect(errors.Is(err, common.ErrValidation)).To(BeTrue())
		})
	})

	Describe("Reingest", func() {
		var (
			existing *entity.Invoice
			entry    ManualEntry
		)

		BeforeEach(func() {
			existing = &entity.Invoice{
				ID:            primitive.NewObjectID(),
				TenantID:      "acme",
				FileName:      "old.pdf",
				Vendor:        "Linode",
				Date:          "2023-05-01",
				Total:         42.5,
				LineItems:     []entity.LineItem{{Description: "Hosting", Amount: 42.5}},
				Summary:       "old summary",
				UploadedAt:    time.Date(2023, 5, 2, 9, 0, 0, 0, time.UTC),
				SourceFileURI: "file:///blobs/acme/old.pdf",
			}
			repo.records[existing.ID] = existing

			entry = ManualEntry{
				Vendor: "Akamai",
				Date:   "2023-05-01",
				Total:  45,
				LineItems: []entity.LineItem{
					{Description: "Hosting", Amount: 45},
				},
			}
		})

		It("should preserve the upload timestamp and source file pointer", func() {
			inv, err := proc.Reingest(context.Background(), "acme", existing.ID, entry)

			Expect(err).NotTo(HaveOccurred())
			Expect(inv.ID).To(Equal(existing.ID))
			Expect(inv.Vendor).To(Equal("Akamai"))
			Expect(inv.UploadedAt).To(BeTemporally("==", existing.UploadedAt))
			Expect(inv.SourceFileURI).To(Equal(existing.SourceFileURI))
			Expect(inv.FileName).To(Equal("old.pdf"))
			Expect(repo.replaced).To(HaveKey(existing.ID))
		})

		It("should re-derive the summary and embedding", func() {
			inv, err := proc.Reingest(context.Background(), "acme", existing.ID, entry)

			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Summary).To(Equal(stages.summary))
			Expect(inv.HasEmbedding()).To(BeTrue())
			Expect(stages.count("summarize")).To(Equal(1))
			Expect(stages.count("embed")).To(Equal(1))
		})

		It("should fail for an unknown record", func() {
			_, err := proc.Reingest(context.Background(), "acme", primitive.NewObjectID(), entry)

			Expect(errors.Is(err, common.ErrNotFound)).To(BeTrue())
		})
	})
})

var _ = Describe("request correlation", func() {
	It("should reuse a transport-supplied request id", func() {
		ctx := common.WithRequestID(context.Background(), "req-42")
		Expect(requestID(ctx)).To(Equal("req-42"))
	})

	It("should mint one for bare contexts", func() {
		Expect(requestID(context.Background())).NotTo(BeEmpty())
	})
})

var _ = Describe("UserMessage", func() {
	It("should name an unreadable document", func() {
		msg := UserMessage(fatal(StageExtract, errors.New("bad image")))
		Expect(msg).To(Equal("the file could not be read as an invoice"))
	})

	It("should call out timeouts", func() {
		msg := UserMessage(fatal(StageSummarize, context.DeadlineExceeded))
		Expect(msg).To(ContainSubstring("timed out"))
	})

	It("should fall back to a generic message for non-stage errors", func() {
		Expect(UserMessage(errors.New("boom"))).To(Equal("ingestion failed"))
	})
})
