package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-intake/internal/invoice"
)

func multipartBody(filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	if contentType != "" {
		header["Content-Type"] = []string{contentType}
	}
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		processor   *mockProcessor
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		processor = &mockProcessor{result: acceptedResult(invoice.FinalStored)}
		service = NewServiceWithDeps(db, processor, storage, &mockIDGenerator{}, &mockTimeSource{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		all := regexp.MustCompile(`^/.*`)
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, all, server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	upload := func(filename, contentType string, data []byte) *http.Response {
		body, ct := multipartBody(filename, contentType, data)
		resp, err := http.Post(ghttpServer.URL()+"/api/invoices", ct, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("POST /api/invoices", func() {
		DescribeTable("maps the final status to a response code",
			func(status invoice.FinalStatus, code int) {
				processor.result = acceptedResult(status)
				resp := upload("a.pdf", "application/pdf", []byte("%PDF"))
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(code))

				var outcome Outcome
				Expect(json.NewDecoder(resp.Body).Decode(&outcome)).To(Succeed())
				Expect(outcome.Result.FinalStatus).To(Equal(status))
				Expect(outcome.Summary).NotTo(BeEmpty())
			},
			Entry("stored", invoice.FinalStored, http.StatusCreated),
			Entry("flagged", invoice.FinalFlaggedForReview, http.StatusAccepted),
			Entry("duplicate", invoice.FinalRejectedDuplicate, http.StatusConflict),
			Entry("rejected", invoice.FinalRejectedRule, http.StatusUnprocessableEntity),
			Entry("extraction failed", invoice.FinalExtractionFailed, http.StatusUnprocessableEntity),
		)

		It("should return the candidate fields", func() {
			resp := upload("a.pdf", "application/pdf", []byte("%PDF"))
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"vendor_name":"Acme Corp"`))
			Expect(string(body)).To(ContainSubstring(`"invoice_id":"id-1"`))
		})

		It("should reject requests without a file", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/invoices", "text/plain", bytes.NewBufferString("nope"))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject oversized uploads", func() {
			server.maxSize = 16
			resp := upload("a.pdf", "application/pdf", bytes.Repeat([]byte("x"), 1024))
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
		})

		It("should return 500 when processing fails", func() {
			processor.err = errors.New("index down")
			resp := upload("a.pdf", "application/pdf", []byte("%PDF"))
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GET /api/invoices", func() {
		BeforeEach(func() {
			_, err := service.ProcessDocument(context.Background(), "a.pdf", []byte("%PDF"), "application/pdf")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should list invoices", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var invoices []*Invoice
			Expect(json.NewDecoder(resp.Body).Decode(&invoices)).To(Succeed())
			Expect(invoices).To(HaveLen(1))
		})

		It("should get one invoice", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/id-1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should serve the document", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/id-1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
		})

		It("should return 404 for unknown invoices", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/nope")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return 500 when the database fails", func() {
			db.listErr = errors.New("boom")
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("reviews", func() {
		BeforeEach(func() {
			processor.result = acceptedResult(invoice.FinalFlaggedForReview)
			_, err := service.ProcessDocument(context.Background(), "a.pdf", []byte("%PDF"), "application/pdf")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should list reviews", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reviews")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var reviews []*Review
			Expect(json.NewDecoder(resp.Body).Decode(&reviews)).To(Succeed())
			Expect(reviews).To(HaveLen(1))
		})

		It("should confirm a review", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/reviews/id-1/confirm", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(db.invoices).To(HaveKey("id-1"))
		})

		It("should return 409 when the confirmed invoice is a duplicate", func() {
			Expect(db.Insert(acceptedResult(invoice.FinalStored).Key)).To(Succeed())
			resp, err := http.Post(ghttpServer.URL()+"/api/reviews/id-1/confirm", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should dismiss a review", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/reviews/id-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.reviews).To(BeEmpty())
		})

		It("should return 404 for unknown reviews", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/reviews/nope/confirm", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/results and /api/stats", func() {
		BeforeEach(func() {
			_, err := service.ProcessDocument(context.Background(), "a.pdf", []byte("%PDF"), "application/pdf")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should list results", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/results")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var records []*Record
			Expect(json.NewDecoder(resp.Body).Decode(&records)).To(Succeed())
			Expect(records).To(HaveLen(1))
		})

		It("should return stats", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/stats")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var stats map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&stats)).To(Succeed())
			Expect(stats).To(HaveKeyWithValue("total_invoices", BeNumerically("==", 1)))
			Expect(stats).To(HaveKeyWithValue("total_amount", "500"))
		})
	})

	Describe("GET /api/export.xlsx", func() {
		It("should serve a workbook", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/export.xlsx")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("invoices.xlsx"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body[:2]).To(Equal([]byte("PK")))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should set headers on normal responses", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})
})
