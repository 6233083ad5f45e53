package store

import (
	"github.com/jackc/pgx/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Bug: cached prepared-statement plans invalidated by schema
// migrations applied while the pool is already open (SQLSTATE 0A000,
// "cached plan must not change result type"). pgx defaults to
// QueryExecModeCacheStatement; forcing DescribeExec describes each
// query (so JSONB/complex-type OIDs still resolve) without caching.
var _ = Describe("newPoolConfig", func() {
	Context("query execution mode", func() {
		It("uses QueryExecModeDescribeExec to prevent stale prepared statement caches", func() {
			cfg, err := newPoolConfig("host=localhost dbname=rounds user=rounds")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ConnConfig.DefaultQueryExecMode).To(Equal(pgx.QueryExecModeDescribeExec))
		})

		It("does not use the unsafe QueryExecModeCacheStatement default", func() {
			cfg, err := newPoolConfig("host=localhost dbname=rounds user=rounds")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ConnConfig.DefaultQueryExecMode).NotTo(Equal(pgx.QueryExecModeCacheStatement))
		})
	})

	Context("connection string parsing", func() {
		It("parses a valid connection string", func() {
			cfg, err := newPoolConfig("host=localhost port=5432 dbname=rounds user=rounds sslmode=disable")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ConnConfig.Host).To(Equal("localhost"))
			Expect(cfg.ConnConfig.Port).To(Equal(uint16(5432)))
			Expect(cfg.ConnConfig.Database).To(Equal("rounds"))
			Expect(cfg.ConnConfig.User).To(Equal("rounds"))
		})

		It("returns an error for an invalid connection string", func() {
			_, err := newPoolConfig("not://a valid connection string %%%")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to parse postgres connection string"))
		})
	})
})

var _ = Describe("rowToSignature", func() {
	It("decodes a nil diagnosis as an unset pointer", func() {
		sig, err := rowToSignature(signatureRow{
			ID:          "sig-1",
			Fingerprint: "fp-1",
			ErrorType:   "TimeoutError",
			Service:     "api",
			Status:      "NEW",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(sig.Diagnosis).To(BeNil())
	})

	It("decodes a stored JSONB diagnosis", func() {
		sig, err := rowToSignature(signatureRow{
			ID:          "sig-1",
			Fingerprint: "fp-1",
			Status:      "DIAGNOSED",
			Diagnosis:   []byte(`{"RootCause":"pool exhaustion","Confidence":"high","CostUSD":0.02}`),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(sig.Diagnosis).NotTo(BeNil())
		Expect(sig.Diagnosis.RootCause).To(Equal("pool exhaustion"))
	})

	It("returns an error for malformed diagnosis JSON", func() {
		_, err := rowToSignature(signatureRow{Diagnosis: []byte(`{not json`)})
		Expect(err).To(HaveOccurred())
	})
})
