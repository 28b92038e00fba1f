package intake_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-intake/internal/intake"
	"github.com/zombor/invoice-intake/internal/invoice"
	"github.com/zombor/invoice-intake/internal/pipeline"
	"github.com/zombor/invoice-intake/internal/scanning"
	"github.com/zombor/invoice-intake/internal/validation"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

var _ = Describe("Integration", func() {
	var (
		db     *intake.BoltDB
		server *httptest.Server
	)

	BeforeEach(func() {
		tmpDir := GinkgoT().TempDir()
		var err error
		db, err = intake.NewBoltDB(filepath.Join(tmpDir, "intake.db"))
		Expect(err).NotTo(HaveOccurred())
		store, err := intake.NewLocalStorage(filepath.Join(tmpDir, "documents"))
		Expect(err).NotTo(HaveOccurred())

		clock := fixedClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
		pipe := pipeline.New(scanning.NewPlainText(), db,
			pipeline.WithValidator(validation.NewValidatorWithDeps(validation.Config{}, clock)),
			pipeline.WithClock(clock),
		)
		service := intake.NewService(db, pipe, store)
		server = httptest.NewServer(intake.NewServer(service))
	})

	AfterEach(func() {
		server.Close()
		db.Close()
	})

	upload := func(name, text string) (int, intake.Outcome) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(text))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(server.URL+"/api/invoices", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var outcome intake.Outcome
		Expect(json.NewDecoder(resp.Body).Decode(&outcome)).To(Succeed())
		return resp.StatusCode, outcome
	}

	It("should store an invoice once and reject the copy", func() {
		text := "Invoice#: 12345\nVendor: Acme Corp\nDate: 2024-03-01\nAmount: $500.00\nTax: $50.00\n"

		code, outcome := upload("acme.txt", text)
		Expect(code).To(Equal(http.StatusCreated))
		Expect(outcome.Result.FinalStatus).To(Equal(invoice.FinalStored))
		Expect(outcome.InvoiceID).NotTo(BeEmpty())

		code, outcome = upload("acme-copy.txt", "INVOICE#: 12345\nVendor: ACME CORP\nDate: 2024-03-01\nAmount: 500\n")
		Expect(code).To(Equal(http.StatusConflict))
		Expect(outcome.Result.FinalStatus).To(Equal(invoice.FinalRejectedDuplicate))

		resp, err := http.Get(server.URL + "/api/invoices/" + "missing")
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should park flagged invoices until confirmed", func() {
		code, outcome := upload("odd.txt", "Invoice#: 9\nVendor: Globex\nDate: 2024-05-01\nAmount: $5.00\nTax: $50.00\n")
		Expect(code).To(Equal(http.StatusAccepted))
		Expect(outcome.ReviewID).NotTo(BeEmpty())

		resp, err := http.Post(server.URL+"/api/reviews/"+outcome.ReviewID+"/confirm", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		code, _ = upload("odd-again.txt", "Invoice#: 9\nVendor: Globex\nDate: 2024-05-01\nAmount: $5.00\nTax: $50.00\n")
		Expect(code).To(Equal(http.StatusConflict))
	})

	It("should reject unreadable and incomplete documents", func() {
		code, outcome := upload("blank.txt", "")
		Expect(code).To(Equal(http.StatusUnprocessableEntity))
		Expect(outcome.Result.FinalStatus).To(Equal(invoice.FinalRejectedRule))

		code, outcome = upload("photo.gif", "GIF89a")
		Expect(code).To(Equal(http.StatusUnprocessableEntity))
		Expect(outcome.Result.FinalStatus).To(Equal(invoice.FinalExtractionFailed))
		Expect(outcome.Result.Attempts).To(Equal(1))

		resp, err := http.Get(server.URL + "/api/stats")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var stats intake.Stats
		Expect(json.NewDecoder(resp.Body).Decode(&stats)).To(Succeed())
		Expect(stats.TotalInvoices).To(Equal(0))
		Expect(stats.ByStatus[invoice.FinalRejectedRule]).To(Equal(1))
		Expect(stats.ByStatus[invoice.FinalExtractionFailed]).To(Equal(1))
	})
})
