package intake

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			name      string
			savedName string
			err       error
		)

		BeforeEach(func() {
			name = "invoice.pdf"
		})

		JustBeforeEach(func() {
			savedName, err = storage.Save(name, []byte("content"))
		})

		It("should write the file", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(savedName).To(Equal("invoice.pdf"))
			Expect(filepath.Join(tmpDir, "invoice.pdf")).To(BeAnExistingFile())
		})

		When("the name tries to escape the directory", func() {
			BeforeEach(func() {
				name = "../../etc/invoice.pdf"
			})

			It("should keep the file inside the storage directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedName).To(Equal("invoice.pdf"))
				Expect(filepath.Join(tmpDir, "invoice.pdf")).To(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		It("should read a saved file", func() {
			_, err := storage.Save("a.txt", []byte("hello"))
			Expect(err).NotTo(HaveOccurred())
			data, err := storage.Get("a.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("hello"))
		})

		It("should fail for missing files", func() {
			_, err := storage.Get("missing.txt")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			_, err := storage.Save("a.txt", []byte("hello"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("a.txt")).To(Succeed())
			Expect(filepath.Join(tmpDir, "a.txt")).NotTo(BeAnExistingFile())
		})

		It("should fail for missing files", func() {
			Expect(storage.Delete("missing.txt")).To(HaveOccurred())
		})
	})
})
