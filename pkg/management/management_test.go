package management_test

import (
	"context"
	"strings"
	"time"

	"github.com/go-logr/logr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/jordigilh/rounds/internal/errors"
	"github.com/jordigilh/rounds/pkg/management"
	"github.com/jordigilh/rounds/pkg/model"
)

type fakeTelemetry struct{}

func (f *fakeTelemetry) GetRecentErrors(ctx context.Context, since time.Time, services []string) ([]model.ErrorEvent, error) {
	return nil, nil
}
func (f *fakeTelemetry) GetTrace(ctx context.Context, traceID string) (model.TraceTree, error) {
	return model.TraceTree{}, nil
}
func (f *fakeTelemetry) GetTraces(ctx context.Context, traceIDs []string) ([]model.TraceTree, error) {
	return nil, nil
}
func (f *fakeTelemetry) GetCorrelatedLogs(ctx context.Context, traceIDs []string, windowMinutes int) ([]model.LogEntry, error) {
	return nil, nil
}
func (f *fakeTelemetry) GetEventsForSignature(ctx context.Context, fingerprint string, limit int) ([]model.ErrorEvent, error) {
	return []model.ErrorEvent{{Service: "api"}}, nil
}

type fakeStore struct {
	signatures map[string]*model.Signature
	all        []model.Signature
	similar    []model.Signature
	updated    []model.Signature
}

func newFakeStore() *fakeStore {
	return &fakeStore{signatures: make(map[string]*model.Signature)}
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*model.Signature, error) {
	return f.signatures[id], nil
}
func (f *fakeStore) GetByFingerprint(ctx context.Context, fp string) (*model.Signature, error) {
	return nil, nil
}
func (f *fakeStore) Save(ctx context.Context, sig *model.Signature) error { return nil }
func (f *fakeStore) Update(ctx context.Context, sig *model.Signature) error {
	f.updated = append(f.updated, *sig)
	return nil
}
func (f *fakeStore) GetPendingInvestigation(ctx context.Context) ([]model.Signature, error) {
	var pending []model.Signature
	for _, sig := range f.all {
		if sig.Status == model.StatusNew {
			pending = append(pending, sig)
		}
	}
	return pending, nil
}
func (f *fakeStore) GetAll(ctx context.Context) ([]model.Signature, error) {
	return f.all, nil
}
func (f *fakeStore) GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]model.Signature, error) {
	return f.similar, nil
}
func (f *fakeStore) GetStats(ctx context.Context) (model.StoreStats, error) {
	return model.StoreStats{}, nil
}

type fakeInvestigator struct {
	result model.Diagnosis
	err    error
}

func (f *fakeInvestigator) Investigate(ctx context.Context, sig *model.Signature) (model.Diagnosis, error) {
	return f.result, f.err
}

var _ = Describe("Service", func() {
	var (
		store *fakeStore
		telem *fakeTelemetry
		inv   *fakeInvestigator
		svc   *management.Service
		sig   *model.Signature
	)

	BeforeEach(func() {
		store = newFakeStore()
		telem = &fakeTelemetry{}
		inv = &fakeInvestigator{}
		svc = &management.Service{
			Store:        store,
			Telemetry:    telem,
			Investigator: inv,
			Logger:       logr.Discard(),
		}
		sig = &model.Signature{ID: "sig-1", Fingerprint: "fp-1", Status: model.StatusNew, OccurrenceCount: 1,
			FirstSeen: time.Now(), LastSeen: time.Now()}
		store.signatures["sig-1"] = sig
		store.all = []model.Signature{*sig}
	})

	It("fails with not-found for an unknown id", func() {
		_, err := svc.GetSignatureDetails(context.Background(), "missing")
		Expect(err).To(HaveOccurred())
		Expect(apperrors.GetType(err)).To(Equal(apperrors.ErrorTypeNotFound))
		Expect(apperrors.GetStatusCode(err)).To(Equal(404))
	})

	It("fails with not-found when muting, resolving, retriaging, or reinvestigating an unknown id", func() {
		Expect(apperrors.GetType(svc.Mute(context.Background(), "missing", "noisy"))).To(Equal(apperrors.ErrorTypeNotFound))
		Expect(apperrors.GetType(svc.Resolve(context.Background(), "missing", "fix"))).To(Equal(apperrors.ErrorTypeNotFound))
		Expect(apperrors.GetType(svc.Retriage(context.Background(), "missing"))).To(Equal(apperrors.ErrorTypeNotFound))

		_, err := svc.Reinvestigate(context.Background(), "missing")
		Expect(apperrors.GetType(err)).To(Equal(apperrors.ErrorTypeNotFound))
	})

	It("rejects an oversized mute reason as a validation error before touching the store", func() {
		err := svc.Mute(context.Background(), "sig-1", strings.Repeat("x", 501))
		Expect(apperrors.GetType(err)).To(Equal(apperrors.ErrorTypeValidation))
		Expect(store.updated).To(BeEmpty())
	})

	It("rejects a resolve fix containing control characters as a validation error", func() {
		err := svc.Resolve(context.Background(), "sig-1", "fix\x00here")
		Expect(apperrors.GetType(err)).To(Equal(apperrors.ErrorTypeValidation))
		Expect(store.updated).To(BeEmpty())
	})

	It("rejects a mute reason containing control characters as a validation error", func() {
		err := svc.Mute(context.Background(), "sig-1", "noisy\x01host")
		Expect(apperrors.GetType(err)).To(Equal(apperrors.ErrorTypeValidation))
		Expect(store.updated).To(BeEmpty())
	})

	It("mutes a signature and persists the transition", func() {
		err := svc.Mute(context.Background(), "sig-1", "noisy")
		Expect(err).NotTo(HaveOccurred())
		Expect(sig.Status).To(Equal(model.StatusMuted))
		Expect(store.updated).To(HaveLen(1))
	})

	It("resolves a signature", func() {
		err := svc.Resolve(context.Background(), "sig-1", "deployed fix")
		Expect(err).NotTo(HaveOccurred())
		Expect(sig.Status).To(Equal(model.StatusResolved))
	})

	It("retriages a diagnosed signature back to NEW, clearing its diagnosis", func() {
		sig.Status = model.StatusDiagnosed
		sig.Diagnosis = &model.Diagnosis{RootCause: "x", Evidence: []string{"e"}, SuggestedFix: "f", Confidence: model.ConfidenceLow}

		err := svc.Retriage(context.Background(), "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(sig.Status).To(Equal(model.StatusNew))
		Expect(sig.Diagnosis).To(BeNil())
	})

	It("reinvestigates inline and returns the fresh diagnosis", func() {
		sig.Status = model.StatusDiagnosed
		inv.result = model.Diagnosis{RootCause: "new cause", Evidence: []string{"e"}, SuggestedFix: "f", Confidence: model.ConfidenceHigh}

		diagnosis, err := svc.Reinvestigate(context.Background(), "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(diagnosis.RootCause).To(Equal("new cause"))
		Expect(sig.Status).To(Equal(model.StatusNew))
	})

	It("assembles signature details with recent events and related signatures", func() {
		store.similar = []model.Signature{{ID: "sig-2"}}

		details, err := svc.GetSignatureDetails(context.Background(), "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(details.Signature.ID).To(Equal("sig-1"))
		Expect(details.RecentEvents).To(HaveLen(1))
		Expect(details.RelatedSignatures).To(HaveLen(1))
	})

	It("lists every signature when no status filter is given, including non-NEW ones", func() {
		muted := model.Signature{ID: "sig-muted", Status: model.StatusMuted}
		store.all = append(store.all, muted)

		all, err := svc.ListSignatures(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})

	It("filters list_signatures by the given status", func() {
		muted := model.Signature{ID: "sig-muted", Status: model.StatusMuted}
		store.all = append(store.all, muted)

		filtered, err := svc.ListSignatures(context.Background(), "MUTED")
		Expect(err).NotTo(HaveOccurred())
		Expect(filtered).To(HaveLen(1))
		Expect(filtered[0].ID).To(Equal("sig-muted"))
	})
})
