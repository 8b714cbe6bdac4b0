package vector_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/common/vector"
)

var _ = Describe("Pack", func() {
	It("writes little-endian float32", func() {
		Expect(vector.Pack([]float32{1})).To(Equal([]byte{0x00, 0x00, 0x80, 0x3f}))
	})

	It("round-trips through Unpack and base64", func() {
		in := []float32{0.25, -1.5, 3}
		out, err := vector.Unpack(vector.Pack(in))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(in))

		decoded, err := vector.DecodeBase64(vector.EncodeBase64(in))
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(Equal(in))
	})

	It("rejects truncated buffers", func() {
		_, err := vector.Unpack([]byte{1, 2, 3})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("MeanUpdate", func() {
	It("folds a new vector into the running mean", func() {
		out, err := vector.MeanUpdate([]float32{1, 0}, 2, []float32{0, 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0]).To(BeNumerically("~", 0.6667, 1e-4))
		Expect(out[1]).To(BeNumerically("~", 0.3333, 1e-4))
	})

	It("returns the embedding itself for an empty mean", func() {
		out, err := vector.MeanUpdate([]float32{9, 9}, 0, []float32{0.5, 0.5})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]float32{0.5, 0.5}))
	})

	It("refuses mismatched dimensions", func() {
		_, err := vector.MeanUpdate([]float32{1}, 1, []float32{1, 2})
		Expect(errors.Is(err, vector.ErrDimensionMismatch)).To(BeTrue())
	})
})

var _ = Describe("Cosine", func() {
	It("is 1 for parallel vectors and 0 for orthogonal ones", func() {
		Expect(vector.Cosine([]float32{1, 1}, []float32{2, 2})).To(BeNumerically("~", 1, 1e-9))
		Expect(vector.Cosine([]float32{1, 0}, []float32{0, 1})).To(BeNumerically("~", 0, 1e-9))
	})

	It("is 0 for zero vectors", func() {
		Expect(vector.Cosine([]float32{0, 0}, []float32{1, 0})).To(Equal(0.0))
	})
})
