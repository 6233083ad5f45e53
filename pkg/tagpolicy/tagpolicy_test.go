package tagpolicy_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/tagpolicy"
)

var _ = Describe("Policy", func() {
	var policy *tagpolicy.Policy

	BeforeEach(func() {
		var err error
		policy, err = tagpolicy.CompileDefault(context.Background())
		Expect(err).NotTo(HaveOccurred())
	})

	It("tags a critical-services signature as critical", func() {
		sig := &model.Signature{Service: "payments", ErrorType: "TimeoutError"}
		tags, err := policy.Classify(context.Background(), sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(tags).To(ContainElement("critical"))
	})

	It("tags a flaky-looking error type as flaky-test", func() {
		sig := &model.Signature{Service: "api", ErrorType: "FlakyAssertionError"}
		tags, err := policy.Classify(context.Background(), sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(tags).To(ContainElement("flaky-test"))
	})

	It("derives no tags for an unremarkable signature", func() {
		sig := &model.Signature{Service: "reporting", ErrorType: "ValueError"}
		tags, err := policy.Classify(context.Background(), sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(tags).To(BeEmpty())
	})
})
