package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/entity"
	"github.com/lensworks/invoicelens/internal/invoices"
	"github.com/lensworks/invoicelens/internal/pipeline"
	"github.com/lensworks/invoicelens/internal/repository"
)

func TestServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Suite")
}

type fakeInvoiceSvc struct {
	listResult    []*entity.Invoice
	byID          *entity.Invoice
	byIDErr       error
	monthResult   []*entity.Invoice
	searchHits    []repository.ScoredInvoice
	searchErr     error
	similarHits   []repository.ScoredInvoice
	similarErr    error
	created       *entity.Invoice
	createErr     error
	updated       *entity.Invoice
	updateErr     error
	deleteErr     error
	gotYear       int
	gotMonth      int
	gotQuery      string
	gotLimit      int
	gotEntry      pipeline.ManualEntry
	gotID         string
	deletedID     string
	listCalls     int
	monthCalls    int
	similarCalled bool
}

func (f *fakeInvoiceSvc) ListAll(_ context.Context, _ string) ([]*entity.Invoice, error) {
	f.listCalls++
	return f.listResult, nil
}

func (f *fakeInvoiceSvc) GetByID(_ context.Context, _, idHex string) (*entity.Invoice, error) {
	f.gotID = idHex
	return f.byID, f.byIDErr
}

func (f *fakeInvoiceSvc) ListByMonth(_ context.Context, _ string, year, month int) ([]*entity.Invoice, error) {
	f.monthCalls++
	f.gotYear, f.gotMonth = year, month
	return f.monthResult, nil
}

func (f *fakeInvoiceSvc) SearchSemantic(_ context.Context, _, query string, limit int) ([]repository.ScoredInvoice, error) {
	f.gotQuery, f.gotLimit = query, limit
	return f.searchHits, f.searchErr
}

func (f *fakeInvoiceSvc) FindSimilar(_ context.Context, _, idHex string) ([]repository.ScoredInvoice, error) {
	f.similarCalled = true
	f.gotID = idHex
	return f.similarHits, f.similarErr
}

func (f *fakeInvoiceSvc) SoftDelete(_ context.Context, _, idHex string) error {
	f.deletedID = idHex
	return f.deleteErr
}

func (f *fakeInvoiceSvc) CreateManual(_ context.Context, entry pipeline.ManualEntry) (*entity.Invoice, error) {
	f.gotEntry = entry
	return f.created, f.createErr
}

func (f *fakeInvoiceSvc) Update(_ context.Context, _, idHex string, entry pipeline.ManualEntry) (*entity.Invoice, error) {
	f.gotID = idHex
	f.gotEntry = entry
	return f.updated, f.updateErr
}

type fakeAnalyticsSvc struct {
	overview *entity.SpendOverview
	byCat    []entity.CategorySpend
	byMonth  []entity.MonthlySpend
	err      error
}

func (f *fakeAnalyticsSvc) SpendByCategory(context.Context, string) ([]entity.CategorySpend, error) {
	return f.byCat, f.err
}

func (f *fakeAnalyticsSvc) SpendByMonth(context.Context, string) ([]entity.MonthlySpend, error) {
	return f.byMonth, f.err
}

func (f *fakeAnalyticsSvc) Overview(context.Context, string) (*entity.SpendOverview, error) {
	return f.overview, f.err
}

type fakeExporter struct {
	data    []byte
	err     error
	gotFrom string
	gotTo   string
}

func (f *fakeExporter) ExportInvoicesXLSX(_ context.Context, _, from, to string) ([]byte, error) {
	f.gotFrom, f.gotTo = from, to
	return f.data, f.err
}

type fakePipe struct {
	result *entity.Invoice
	err    error
	got    pipeline.IngestRequest
	calls  int
}

func (f *fakePipe) IngestFile(_ context.Context, in pipeline.IngestRequest) (*entity.Invoice, error) {
	f.calls++
	f.got = in
	return f.result, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Live(context.Context) error { return f.err }

var _ = Describe("Router", func() {
	var (
		invSvc   *fakeInvoiceSvc
		anaSvc   *fakeAnalyticsSvc
		exporter *fakeExporter
		pipe     *fakePipe
		pinger   *fakePinger
		router   *gin.Engine
	)

	newInvoice := func(vendor string) *entity.Invoice {
		return &entity.Invoice{
			ID:       primitive.NewObjectID(),
			TenantID: "acme",
			Vendor:   vendor,
			Date:     "2024-03-01",
			Total:    42.5,
			Summary:  "An invoice from " + vendor,
		}
	}

	BeforeEach(func() {
		invSvc = &fakeInvoiceSvc{}
		anaSvc = &fakeAnalyticsSvc{}
		exporter = &fakeExporter{}
		pipe = &fakePipe{}
		pinger = &fakePinger{}
		router = NewRouter(Deps{
			Invoices:       invSvc,
			Analytics:      anaSvc,
			Exporter:       exporter,
			Pipeline:       pipe,
			Health:         pinger,
			Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			MaxUploadBytes: 1 << 20,
		})
	})

	perform := func(method, target string, body io.Reader, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, body)
		req.Header.Set("X-Tenant-Id", "acme")
		for _, m := range mutate {
			m(req)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	decodeError := func(w *httptest.ResponseRecorder) ErrorResponse {
		var resp ErrorResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	Describe("tenant gate", func() {
		It("should reject requests without a tenant header", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeError(w).Error.Code).To(Equal("TENANT_REQUIRED"))
			Expect(invSvc.listCalls).To(BeZero())
		})

		It("should reject malformed tenant ids", func() {
			w := perform(http.MethodGet, "/api/v1/invoices", nil, func(r *http.Request) {
				r.Header.Set("X-Tenant-Id", "bad tenant!")
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeError(w).Error.Code).To(Equal("VALIDATION_ERROR"))
		})

		It("should echo a caller-supplied request id", func() {
			w := perform(http.MethodGet, "/api/v1/invoices", nil, func(r *http.Request) {
				r.Header.Set("X-Request-Id", "req-123")
			})
			Expect(w.Header().Get("X-Request-Id")).To(Equal("req-123"))
		})

		It("should mint a request id when none is supplied", func() {
			w := perform(http.MethodGet, "/api/v1/invoices", nil)
			Expect(w.Header().Get("X-Request-Id")).NotTo(BeEmpty())
		})
	})

	Describe("GET /api/v1/invoices", func() {
		It("should list all invoices by default", func() {
			invSvc.listResult = []*entity.Invoice{newInvoice("Linode"), newInvoice("Hetzner")}

			w := perform(http.MethodGet, "/api/v1/invoices", nil)
			Expect(w.Code).To(Equal(http.StatusOK))

			var body struct {
				Invoices []entity.Invoice `json:"invoices"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Invoices).To(HaveLen(2))
			Expect(body.Invoices[0].Vendor).To(Equal("Linode"))
			Expect(invSvc.monthCalls).To(BeZero())
		})

		It("should narrow to a month when year and month are given", func() {
			w := perform(http.MethodGet, "/api/v1/invoices?year=2024&month=2", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(invSvc.monthCalls).To(Equal(1))
			Expect(invSvc.gotYear).To(Equal(2024))
			Expect(invSvc.gotMonth).To(Equal(2))
			Expect(invSvc.listCalls).To(BeZero())
		})

		It("should reject a month filter missing the year", func() {
			w := perform(http.MethodGet, "/api/v1/invoices?month=2", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(invSvc.monthCalls).To(BeZero())
		})
	})

	Describe("GET /api/v1/invoices/:id", func() {
		It("should return the invoice", func() {
			invSvc.byID = newInvoice("Linode")

			w := perform(http.MethodGet, "/api/v1/invoices/"+invSvc.byID.ID.Hex(), nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(invSvc.gotID).To(Equal(invSvc.byID.ID.Hex()))

			var inv entity.Invoice
			Expect(json.Unmarshal(w.Body.Bytes(), &inv)).To(Succeed())
			Expect(inv.Vendor).To(Equal("Linode"))
		})

		It("should map missing invoices to 404", func() {
			invSvc.byIDErr = common.NewAppError("NOT_FOUND", "invoice not found", common.ErrNotFound)

			w := perform(http.MethodGet, "/api/v1/invoices/ffffffffffffffffffffffff", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decodeError(w).Error.Code).To(Equal("NOT_FOUND"))
		})
	})

	Describe("POST /api/v1/invoices", func() {
		uploadRequest := func(fieldName, fileName string, contents []byte) *httptest.ResponseRecorder {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			part, err := mw.CreateFormFile(fieldName, fileName)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(contents)
			Expect(err).NotTo(HaveOccurred())
			Expect(mw.Close()).To(Succeed())

			return perform(http.MethodPost, "/api/v1/invoices", &buf, func(r *http.Request) {
				r.Header.Set("Content-Type", mw.FormDataContentType())
			})
		}

		It("should ingest the uploaded file", func() {
			pipe.result = newInvoice("Linode")

			w := uploadRequest("file", "june.pdf", []byte("%PDF-1.4 stub"))
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(pipe.calls).To(Equal(1))
			Expect(pipe.got.TenantID).To(Equal("acme"))
			Expect(pipe.got.FileName).To(Equal("june.pdf"))
			Expect(pipe.got.MimeType).To(Equal("application/pdf"))
			Expect(pipe.got.Data).To(Equal([]byte("%PDF-1.4 stub")))
		})

		It("should reject requests without a file part", func() {
			w := uploadRequest("attachment", "june.pdf", []byte("x"))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(pipe.calls).To(BeZero())
		})

		It("should map extraction failures to 502", func() {
			pipe.err = &pipeline.StageError{Stage: pipeline.StageExtract, Severity: pipeline.SeverityFatal, Err: errors.New("model refused")}

			w := uploadRequest("file", "june.pdf", []byte("%PDF-1.4 stub"))
			Expect(w.Code).To(Equal(http.StatusBadGateway))
			resp := decodeError(w)
			Expect(resp.Error.Code).To(Equal("PIPELINE_FAILED"))
			Expect(resp.Error.Message).To(ContainSubstring("could not be read as an invoice"))
		})

		It("should map persistence failures to 500", func() {
			pipe.err = &pipeline.StageError{Stage: pipeline.StagePersist, Severity: pipeline.SeverityFatal, Err: errors.New("write failed")}

			w := uploadRequest("file", "june.pdf", []byte("%PDF-1.4 stub"))
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("POST /api/v1/invoices/manual", func() {
		It("should create a manual record", func() {
			invSvc.created = newInvoice("Landlord LLC")
			body := `{"vendor":"Landlord LLC","date":"2024-03-01","total":1200,"categories":["Rent"]}`

			w := perform(http.MethodPost, "/api/v1/invoices/manual", bytes.NewBufferString(body), func(r *http.Request) {
				r.Header.Set("Content-Type", "application/json")
			})
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(invSvc.gotEntry.TenantID).To(Equal("acme"))
			Expect(invSvc.gotEntry.Vendor).To(Equal("Landlord LLC"))
			Expect(invSvc.gotEntry.Categories).To(Equal([]string{"Rent"}))
		})

		It("should reject malformed bodies", func() {
			w := perform(http.MethodPost, "/api/v1/invoices/manual", bytes.NewBufferString("{nope"), func(r *http.Request) {
				r.Header.Set("Content-Type", "application/json")
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("PUT /api/v1/invoices/:id", func() {
		It("should update and return the invoice", func() {
			invSvc.updated = newInvoice("Linode")
			body := `{"vendor":"Linode","total":50}`

			w := perform(http.MethodPut, "/api/v1/invoices/abc123abc123abc123abc123", bytes.NewBufferString(body), func(r *http.Request) {
				r.Header.Set("Content-Type", "application/json")
			})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(invSvc.gotID).To(Equal("abc123abc123abc123abc123"))
			Expect(invSvc.gotEntry.Vendor).To(Equal("Linode"))
		})
	})

	Describe("DELETE /api/v1/invoices/:id", func() {
		It("should return 204 on success", func() {
			w := perform(http.MethodDelete, "/api/v1/invoices/abc123abc123abc123abc123", nil)
			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(invSvc.deletedID).To(Equal("abc123abc123abc123abc123"))
		})
	})

	Describe("GET /api/v1/invoices/:id/similar", func() {
		It("should return scored neighbors", func() {
			invSvc.similarHits = []repository.ScoredInvoice{
				{Invoice: newInvoice("Linode"), Score: 0.91},
			}

			w := perform(http.MethodGet, "/api/v1/invoices/abc123abc123abc123abc123/similar", nil)
			Expect(w.Code).To(Equal(http.StatusOK))

			var body struct {
				Results []struct {
					Invoice entity.Invoice `json:"invoice"`
					Score   float64        `json:"score"`
				} `json:"results"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Results).To(HaveLen(1))
			Expect(body.Results[0].Score).To(BeNumerically("~", 0.91, 1e-9))
		})

		It("should map unembedded anchors to 409", func() {
			invSvc.similarErr = common.NewAppError("NO_EMBEDDING", "invoice has no embedding", invoices.ErrNoEmbedding)

			w := perform(http.MethodGet, "/api/v1/invoices/abc123abc123abc123abc123/similar", nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(decodeError(w).Error.Code).To(Equal("NO_EMBEDDING"))
		})
	})

	Describe("GET /api/v1/search", func() {
		It("should pass query and limit through", func() {
			invSvc.searchHits = []repository.ScoredInvoice{
				{Invoice: newInvoice("Linode"), Score: 0.8},
			}

			w := perform(http.MethodGet, "/api/v1/search?q=cloud+hosting&limit=5", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(invSvc.gotQuery).To(Equal("cloud hosting"))
			Expect(invSvc.gotLimit).To(Equal(5))
		})

		It("should default the limit when absent", func() {
			w := perform(http.MethodGet, "/api/v1/search?q=cloud", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(invSvc.gotLimit).To(BeZero())
		})

		It("should reject a non-numeric limit", func() {
			w := perform(http.MethodGet, "/api/v1/search?q=cloud&limit=abc", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/analytics/overview", func() {
		It("should return the rollup", func() {
			anaSvc.overview = &entity.SpendOverview{TotalSpend: 150, ActiveMonths: 2, AverageMonthlySpend: 75}

			w := perform(http.MethodGet, "/api/v1/analytics/overview", nil)
			Expect(w.Code).To(Equal(http.StatusOK))

			var ov entity.SpendOverview
			Expect(json.Unmarshal(w.Body.Bytes(), &ov)).To(Succeed())
			Expect(ov.TotalSpend).To(BeNumerically("~", 150, 1e-9))
			Expect(ov.ActiveMonths).To(Equal(2))
		})
	})

	Describe("GET /api/v1/export/invoices.xlsx", func() {
		It("should stream the workbook with download headers", func() {
			exporter.data = []byte("PK\x03\x04 workbook bytes")

			w := perform(http.MethodGet, "/api/v1/export/invoices.xlsx?from=2024-01-01&to=2024-03-31", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal(xlsxContentType))
			Expect(w.Header().Get("Content-Disposition")).To(ContainSubstring("attachment"))
			Expect(w.Body.Bytes()).To(Equal(exporter.data))
			Expect(exporter.gotFrom).To(Equal("2024-01-01"))
			Expect(exporter.gotTo).To(Equal("2024-03-31"))
		})

		It("should map malformed windows to 400", func() {
			exporter.err = common.NewAppError("VALIDATION_ERROR", "from must be a YYYY-MM-DD date", common.ErrValidation)

			w := perform(http.MethodGet, "/api/v1/export/invoices.xlsx?from=notadate", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /healthz", func() {
		It("should not require a tenant", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("should report degraded when the store is unreachable", func() {
			pinger.err = errors.New("no reachable servers")

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})
})
