package triage_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/triage"
)

var _ = Describe("Engine", func() {
	var (
		engine *triage.Engine
		now    time.Time
	)

	BeforeEach(func() {
		engine = triage.NewDefault()
		now = time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	})

	Describe("ShouldInvestigate", func() {
		It("refuses a RESOLVED signature", func() {
			sig := &model.Signature{Status: model.StatusResolved, OccurrenceCount: 10}
			Expect(engine.ShouldInvestigate(sig, now)).To(BeFalse())
		})

		It("refuses a MUTED signature", func() {
			sig := &model.Signature{Status: model.StatusMuted, OccurrenceCount: 10}
			Expect(engine.ShouldInvestigate(sig, now)).To(BeFalse())
		})

		It("refuses a signature below the occurrence minimum (S3 boundary)", func() {
			sig := &model.Signature{Status: model.StatusNew, OccurrenceCount: 2}
			Expect(engine.ShouldInvestigate(sig, now)).To(BeFalse())
		})

		It("accepts a signature exactly at the occurrence minimum", func() {
			sig := &model.Signature{Status: model.StatusNew, OccurrenceCount: 3}
			Expect(engine.ShouldInvestigate(sig, now)).To(BeTrue())
		})

		It("refuses a signature diagnosed within the cooldown (S3)", func() {
			sig := &model.Signature{
				Status:          model.StatusDiagnosed,
				OccurrenceCount: 10,
				Diagnosis:       &model.Diagnosis{DiagnosedAt: now.Add(-1 * time.Hour)},
			}
			Expect(engine.ShouldInvestigate(sig, now)).To(BeFalse())
		})

		It("accepts the same signature once the cooldown has elapsed (S3)", func() {
			sig := &model.Signature{
				Status:          model.StatusDiagnosed,
				OccurrenceCount: 10,
				Diagnosis:       &model.Diagnosis{DiagnosedAt: now.Add(-1 * time.Hour)},
			}
			later := now.Add(25 * time.Hour)
			Expect(engine.ShouldInvestigate(sig, later)).To(BeTrue())
		})
	})

	Describe("ShouldNotify", func() {
		It("notifies on high confidence regardless of status", func() {
			sig := &model.Signature{Status: model.StatusInvestigating}
			diagnosis := &model.Diagnosis{Confidence: model.ConfidenceHigh}
			Expect(engine.ShouldNotify(sig, diagnosis, "")).To(BeTrue())
		})

		It("notifies on medium confidence when the original status was NEW", func() {
			sig := &model.Signature{Status: model.StatusDiagnosed}
			diagnosis := &model.Diagnosis{Confidence: model.ConfidenceMedium}
			Expect(engine.ShouldNotify(sig, diagnosis, model.StatusNew)).To(BeTrue())
		})

		It("does not notify on medium confidence when original status was not NEW", func() {
			sig := &model.Signature{Status: model.StatusDiagnosed}
			diagnosis := &model.Diagnosis{Confidence: model.ConfidenceMedium}
			Expect(engine.ShouldNotify(sig, diagnosis, model.StatusInvestigating)).To(BeFalse())
		})

		It("notifies when the signature is tagged critical even at low confidence", func() {
			sig := &model.Signature{Status: model.StatusDiagnosed, Tags: []string{"critical"}}
			diagnosis := &model.Diagnosis{Confidence: model.ConfidenceLow}
			Expect(engine.ShouldNotify(sig, diagnosis, "")).To(BeTrue())
		})

		It("does not notify on low confidence with no original-NEW and no critical tag", func() {
			sig := &model.Signature{Status: model.StatusDiagnosed}
			diagnosis := &model.Diagnosis{Confidence: model.ConfidenceLow}
			Expect(engine.ShouldNotify(sig, diagnosis, "")).To(BeFalse())
		})
	})

	Describe("CalculatePriority (S6)", func() {
		It("matches the exact contract arithmetic for three concrete signatures", func() {
			a := &model.Signature{
				OccurrenceCount: 10,
				LastSeen:        now.Add(-10 * time.Minute),
				Status:          model.StatusNew,
				Tags:            []string{},
			}
			b := &model.Signature{
				OccurrenceCount: 50,
				LastSeen:        now.Add(-48 * time.Hour),
				Status:          model.StatusNew,
				Tags:            []string{"critical"},
			}
			c := &model.Signature{
				OccurrenceCount: 5,
				LastSeen:        now.Add(-30 * time.Minute),
				Status:          model.StatusNew,
				Tags:            []string{"flaky-test"},
			}

			pa := engine.CalculatePriority(a, now)
			pb := engine.CalculatePriority(b, now)
			pc := engine.CalculatePriority(c, now)

			Expect(pb).To(Equal(200))
			Expect(pa).To(Equal(110))
			Expect(pc).To(Equal(60))

			Expect(pb).To(BeNumerically(">", pa))
			Expect(pa).To(BeNumerically(">", pc))
		})

		It("caps the occurrence contribution at 100", func() {
			sig := &model.Signature{OccurrenceCount: 500, LastSeen: now.Add(-72 * time.Hour), Status: model.StatusDiagnosed}
			Expect(engine.CalculatePriority(sig, now)).To(Equal(100))
		})

		It("allows negative priority from the flaky-test penalty", func() {
			sig := &model.Signature{
				OccurrenceCount: 1,
				LastSeen:        now.Add(-72 * time.Hour),
				Status:          model.StatusDiagnosed,
				Tags:            []string{"flaky-test"},
			}
			Expect(engine.CalculatePriority(sig, now)).To(Equal(-19))
		})
	})
})
