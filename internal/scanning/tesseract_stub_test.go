//go:build !ocr

package scanning

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-intake/internal/invoice"
)

var _ = Describe("Tesseract without OCR support", func() {
	It("should refuse to construct", func() {
		t, err := NewTesseract("eng")
		Expect(err).To(MatchError(ErrOCRNotEnabled))
		Expect(t).To(BeNil())
	})

	It("should fail permanently when used", func() {
		var t *Tesseract
		_, err := t.Extract(context.Background(), invoice.RawDocument{})
		Expect(err).To(MatchError(ErrOCRNotEnabled))
		Expect(IsTransient(err)).To(BeFalse())
		Expect(t.Close()).To(Succeed())
	})
})
