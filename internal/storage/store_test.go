package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/fimlab/internal/fim"
	"github.com/san-kum/fimlab/internal/maxent"
	"gonum.org/v1/gonum/mat"
)

func sampleSnapshot() fim.Snapshot {
	return fim.Snapshot{
		Variant: "magnetization",
		Model: maxent.Spec{
			Kind: "ising",
			H:    []float64{0.1, -0.2},
			J:    []float64{0.3},
		},
		Eps: 1e-7,
		DJ: []fim.Row{
			{1.1, 0, 0.2},
			{math.NaN(), 0.9, 0.1},
		},
		Flags: []fim.Flag{fim.FlagOK, fim.FlagUnstable},
	}
}

var _ = ginkgo.Describe("Store", func() {
	var st *Store

	ginkgo.BeforeEach(func() {
		st = New(filepath.Join(ginkgo.GinkgoT().TempDir(), "runs"))
		Expect(st.Init()).To(Succeed())
	})

	ginkgo.It("saves and loads a snapshot", func() {
		id, err := st.Save(sampleSnapshot(), map[string]string{"preset": "pair"})
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())

		meta, err := st.Load(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Variant).To(Equal("magnetization"))
		Expect(meta.Kind).To(Equal("ising"))
		Expect(meta.N).To(Equal(2))
		Expect(meta.Flagged).To(Equal(1))
		Expect(meta.Labels).To(HaveKeyWithValue("preset", "pair"))
		Expect(meta.Hessian).To(BeNil())

		snap, err := st.LoadSnapshot(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.DJ).To(HaveLen(2))
		Expect(snap.DJ[0]).To(Equal(fim.Row{1.1, 0, 0.2}))
		Expect(math.IsNaN(snap.DJ[1][0])).To(BeTrue())
		Expect(snap.Flags).To(Equal([]fim.Flag{fim.FlagOK, fim.FlagUnstable}))
	})

	ginkgo.It("lists runs and skips unreadable directories", func() {
		_, err := st.Save(sampleSnapshot(), nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = st.Save(sampleSnapshot(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Mkdir(filepath.Join(st.Dir(), "junk"), 0755)).To(Succeed())

		runs, err := st.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(HaveLen(2))
		Expect(runs[0].Timestamp).NotTo(BeTemporally("<", runs[1].Timestamp))
	})

	ginkgo.It("lists nothing when the directory does not exist", func() {
		runs, err := New(filepath.Join(ginkgo.GinkgoT().TempDir(), "missing")).List()
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(BeEmpty())
	})

	ginkgo.It("reports unknown runs", func() {
		_, err := st.Load("nope")
		Expect(err).To(MatchError(ErrNotFound))
		_, err = st.LoadSnapshot("nope")
		Expect(err).To(MatchError(ErrNotFound))
	})

	ginkgo.It("stores a hessian exactly", func() {
		id, err := st.Save(sampleSnapshot(), nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = st.LoadHessian(id)
		Expect(err).To(MatchError(ErrNotFound))

		h := mat.NewDense(2, 2, []float64{1.0 / 3, -2e-17, -2e-17, math.Pi})
		info := HessianMetadata{Mode: "majority", Precision: "float64", Eps: 1e-4, Converged: true, Residual: 1e-9}
		Expect(st.SaveHessian(id, h, info)).To(Succeed())

		got, err := st.LoadHessian(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.Equal(h, got)).To(BeTrue())

		meta, err := st.Load(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Hessian).NotTo(BeNil())
		Expect(*meta.Hessian).To(Equal(info))
	})
})

var _ = ginkgo.Describe("Report", func() {
	ginkgo.It("stores eigenvectors by column", func() {
		v := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
		r := NewReport(RunMetadata{ID: "x"}, []float64{5, 1}, v, []string{"w"})
		Expect(r.Eigenvectors).To(Equal([][]float64{{1, 3}, {2, 4}}))

		var buf bytes.Buffer
		Expect(WriteReport(&buf, r)).To(Succeed())
		var back Report
		Expect(json.Unmarshal(buf.Bytes(), &back)).To(Succeed())
		Expect(back.Eigenvalues).To(Equal([]float64{5, 1}))
		Expect(back.Warnings).To(ConsistOf("w"))
	})
})
