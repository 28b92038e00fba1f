package intake

import (
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-intake/internal/dedup"
	"github.com/zombor/invoice-intake/internal/invoice"
)

var _ dedup.Claimer = (*BoltDB)(nil)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		db     *BoltDB
		now    time.Time
	)

	newTestInvoice := func(id, number string) *Invoice {
		return &Invoice{
			ID:            id,
			InvoiceNumber: number,
			VendorName:    "Acme Corp",
			Amount:        decimal.RequireFromString("12.50"),
			Key:           invoice.Key{Vendor: "acme corp", Number: number, Amount: "12.5"},
			CreatedAt:     now,
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		var err error
		db, err = NewBoltDB(filepath.Join(tmpDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("StoreInvoice", func() {
		It("should store and retrieve an invoice", func() {
			Expect(db.StoreInvoice(newTestInvoice("a", "1"))).To(Succeed())

			inv, err := db.GetInvoice("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.InvoiceNumber).To(Equal("1"))
			Expect(inv.Amount.Equal(decimal.RequireFromString("12.5"))).To(BeTrue())
		})

		It("should claim the key", func() {
			Expect(db.StoreInvoice(newTestInvoice("a", "1"))).To(Succeed())
			Expect(db.Contains(invoice.Key{Vendor: "acme corp", Number: "1", Amount: "12.5"})).To(BeTrue())
		})

		It("should refuse a second invoice with the same key", func() {
			Expect(db.StoreInvoice(newTestInvoice("a", "1"))).To(Succeed())
			Expect(db.StoreInvoice(newTestInvoice("b", "1"))).To(MatchError(ErrDuplicate))

			_, err := db.GetInvoice("b")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should let exactly one concurrent store win", func() {
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					if err := db.StoreInvoice(newTestInvoice(string(rune('a'+i)), "1")); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					} else {
						Expect(err).To(MatchError(ErrDuplicate))
					}
				}(i)
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})
	})

	Describe("ListInvoices", func() {
		It("should return invoices oldest first", func() {
			late := newTestInvoice("a", "1")
			late.CreatedAt = now.Add(time.Hour)
			Expect(db.StoreInvoice(late)).To(Succeed())
			Expect(db.StoreInvoice(newTestInvoice("b", "2"))).To(Succeed())

			invoices, err := db.ListInvoices()
			Expect(err).NotTo(HaveOccurred())
			Expect(invoices).To(HaveLen(2))
			Expect(invoices[0].ID).To(Equal("b"))
		})

		It("should return an empty slice when empty", func() {
			invoices, err := db.ListInvoices()
			Expect(err).NotTo(HaveOccurred())
			Expect(invoices).NotTo(BeNil())
			Expect(invoices).To(BeEmpty())
		})
	})

	Describe("results", func() {
		It("should keep every record", func() {
			result := invoice.ProcessingResult{DocumentName: "a.pdf", FinalStatus: invoice.FinalRejectedRule, Candidate: invoice.NewCandidate()}
			Expect(db.SaveResult(&Record{ID: "1", Result: result, CreatedAt: now})).To(Succeed())
			Expect(db.SaveResult(&Record{ID: "2", Result: result, CreatedAt: now.Add(time.Second)})).To(Succeed())

			records, err := db.ListResults()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].Result.FinalStatus).To(Equal(invoice.FinalRejectedRule))
			Expect(records[0].Result.Candidate.FieldConfidence).To(HaveLen(len(invoice.Fields)))
		})
	})

	Describe("reviews", func() {
		BeforeEach(func() {
			Expect(db.SaveReview(&Review{ID: "r1", Filename: "r1.pdf", CreatedAt: now})).To(Succeed())
		})

		It("should get and list reviews", func() {
			review, err := db.GetReview("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(review.Filename).To(Equal("r1.pdf"))

			reviews, err := db.ListReviews()
			Expect(err).NotTo(HaveOccurred())
			Expect(reviews).To(HaveLen(1))
		})

		It("should delete reviews", func() {
			Expect(db.DeleteReview("r1")).To(Succeed())
			_, err := db.GetReview("r1")
			Expect(err).To(MatchError(ErrNotFound))
			Expect(db.DeleteReview("r1")).To(MatchError(ErrNotFound))
		})
	})

	Describe("duplicate index", func() {
		key := invoice.Key{Vendor: "v", Number: "n", Amount: "1"}

		It("should insert keys", func() {
			Expect(db.Contains(key)).To(BeFalse())
			Expect(db.Insert(key)).To(Succeed())
			Expect(db.Contains(key)).To(BeTrue())
		})

		It("should insert a key only once", func() {
			Expect(db.InsertIfAbsent(key)).To(BeTrue())
			Expect(db.InsertIfAbsent(key)).To(BeFalse())
		})

		It("should persist across reopen", func() {
			Expect(db.Insert(key)).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(filepath.Join(tmpDir, "test.db"))
			Expect(err).NotTo(HaveOccurred())
			Expect(db.Contains(key)).To(BeTrue())
		})
	})
})
