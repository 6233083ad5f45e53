package poll_test

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rounds/pkg/fingerprint"
	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/poll"
	"github.com/jordigilh/rounds/pkg/triage"
)

type fakeTelemetry struct {
	events []model.ErrorEvent
}

func (f *fakeTelemetry) GetRecentErrors(ctx context.Context, since time.Time, services []string) ([]model.ErrorEvent, error) {
	return f.events, nil
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
	return nil, nil
}

type fakeStore struct {
	byFingerprint map[string]*model.Signature
	saved         []model.Signature
	updated       []model.Signature
	pending       []model.Signature
}

func newFakeStore() *fakeStore {
	return &fakeStore{byFingerprint: make(map[string]*model.Signature)}
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*model.Signature, error) { return nil, nil }
func (f *fakeStore) GetByFingerprint(ctx context.Context, fp string) (*model.Signature, error) {
	return f.byFingerprint[fp], nil
}
func (f *fakeStore) Save(ctx context.Context, sig *model.Signature) error {
	f.saved = append(f.saved, *sig)
	f.byFingerprint[sig.Fingerprint] = sig
	return nil
}
func (f *fakeStore) Update(ctx context.Context, sig *model.Signature) error {
	f.updated = append(f.updated, *sig)
	f.byFingerprint[sig.Fingerprint] = sig
	return nil
}
func (f *fakeStore) GetPendingInvestigation(ctx context.Context) ([]model.Signature, error) {
	return f.pending, nil
}
func (f *fakeStore) GetAll(ctx context.Context) ([]model.Signature, error) {
	return nil, nil
}
func (f *fakeStore) GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]model.Signature, error) {
	return nil, nil
}
func (f *fakeStore) GetStats(ctx context.Context) (model.StoreStats, error) {
	return model.StoreStats{}, nil
}

type fakeInvestigator struct {
	visited []string
}

func (f *fakeInvestigator) Investigate(ctx context.Context, sig *model.Signature) (model.Diagnosis, error) {
	f.visited = append(f.visited, sig.ID)
	return model.Diagnosis{
		RootCause:    "root",
		Evidence:     []string{"e"},
		SuggestedFix: "fix",
		Confidence:   model.ConfidenceLow,
	}, nil
}

var _ = Describe("Service.ExecutePollCycle", func() {
	var (
		telem *fakeTelemetry
		store *fakeStore
		now   time.Time
		svc   *poll.Service
	)

	BeforeEach(func() {
		now = time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
		telem = &fakeTelemetry{}
		store = newFakeStore()
		svc = &poll.Service{
			Telemetry:      telem,
			Store:          store,
			Fingerprinter:  fingerprint.New(),
			Triage:         triage.NewDefault(),
			Logger:         logr.Discard(),
			LookbackWindow: 5 * time.Minute,
			Now:            func() time.Time { return now },
		}
	})

	It("S1: creates one new signature for a single unseen error, not yet investigation-eligible", func() {
		telem.events = []model.ErrorEvent{{
			ErrorType:    "TimeoutError",
			Service:      "api",
			ErrorMessage: "timeout after 30s",
			Stack:        []model.StackFrame{{Module: "api.handler", Function: "run", Filename: "handler.py", Lineno: 42}},
			Timestamp:    now,
		}}

		result, err := svc.ExecutePollCycle(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ErrorsFound).To(Equal(1))
		Expect(result.NewSignatures).To(Equal(1))
		Expect(result.UpdatedSignatures).To(Equal(0))
		Expect(result.InvestigationsQueued).To(Equal(0))

		Expect(store.saved).To(HaveLen(1))
		Expect(store.saved[0].Status).To(Equal(model.StatusNew))
		Expect(store.saved[0].OccurrenceCount).To(Equal(1))
	})

	It("S2: collapses message variants into one signature with occurrence_count 3", func() {
		// Duration held fixed across variants: the numeric-run mask only
		// fires at 3+ digits, so a 2-digit duration difference would by
		// itself keep these apart. Only the IP/port vary, which is what
		// the masking rule actually erases.
		stack := []model.StackFrame{{Module: "db", Function: "connect"}}
		telem.events = []model.ErrorEvent{
			{ErrorType: "ConnError", Service: "api", Stack: stack, Timestamp: now,
				ErrorMessage: "Connection to 10.0.0.5:5432 timed out after 30s"},
			{ErrorType: "ConnError", Service: "api", Stack: stack, Timestamp: now.Add(time.Minute),
				ErrorMessage: "Connection to 10.0.0.7:5432 timed out after 30s"},
			{ErrorType: "ConnError", Service: "api", Stack: stack, Timestamp: now.Add(2 * time.Minute),
				ErrorMessage: "Connection to 10.0.0.5:6432 timed out after 30s"},
		}

		result, err := svc.ExecutePollCycle(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.NewSignatures).To(Equal(1))
		Expect(result.UpdatedSignatures).To(Equal(2))

		Expect(store.saved).To(HaveLen(1))
		Expect(store.saved[0].MessageTemplate).To(ContainSubstring("*"))
		Expect(store.saved[0].MessageTemplate).NotTo(ContainSubstring("10.0.0"))

		final := store.byFingerprint[store.saved[0].Fingerprint]
		Expect(final.OccurrenceCount).To(Equal(3))
	})

	It("returns a zero-valued result for an empty batch", func() {
		result, err := svc.ExecutePollCycle(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(model.PollResult{Timestamp: now}))
	})

	It("tallies investigations_queued once a signature crosses the occurrence threshold", func() {
		stack := []model.StackFrame{{Module: "db", Function: "connect"}}
		events := make([]model.ErrorEvent, 0, 3)
		for i := 0; i < 3; i++ {
			events = append(events, model.ErrorEvent{
				ErrorType: "ConnError", Service: "api", Stack: stack,
				ErrorMessage: "boom", Timestamp: now.Add(time.Duration(i) * time.Second),
			})
		}
		telem.events = events

		result, err := svc.ExecutePollCycle(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.InvestigationsQueued).To(Equal(1))
	})
})

var _ = Describe("Service.ExecuteInvestigationCycle", func() {
	It("S6: visits pending signatures in priority order B, A, C", func() {
		now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
		a := model.Signature{ID: "A", OccurrenceCount: 10, LastSeen: now.Add(-10 * time.Minute), Status: model.StatusNew}
		b := model.Signature{ID: "B", OccurrenceCount: 50, LastSeen: now.Add(-48 * time.Hour), Status: model.StatusNew, Tags: []string{"critical"}}
		c := model.Signature{ID: "C", OccurrenceCount: 5, LastSeen: now.Add(-30 * time.Minute), Status: model.StatusNew, Tags: []string{"flaky-test"}}

		store := newFakeStore()
		store.pending = []model.Signature{a, b, c}
		inv := &fakeInvestigator{}

		svc := &poll.Service{
			Store:        store,
			Investigator: inv,
			Triage:       triage.New(1, 24*time.Hour, model.ConfidenceHigh),
			Logger:       logr.Discard(),
			Now:          func() time.Time { return now },
		}

		result, err := svc.ExecuteInvestigationCycle(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.InvestigationsAttempted).To(Equal(3))
		Expect(result.DiagnosesProduced).To(Equal(3))
		Expect(inv.visited).To(Equal([]string{"B", "A", "C"}))
	})

	It("skips signatures that no longer qualify for investigation", func() {
		now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
		tooFew := model.Signature{ID: "low", OccurrenceCount: 1, LastSeen: now, Status: model.StatusNew}

		store := newFakeStore()
		store.pending = []model.Signature{tooFew}
		inv := &fakeInvestigator{}

		svc := &poll.Service{
			Store:        store,
			Investigator: inv,
			Triage:       triage.NewDefault(),
			Logger:       logr.Discard(),
			Now:          func() time.Time { return now },
		}

		result, err := svc.ExecuteInvestigationCycle(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.InvestigationsAttempted).To(Equal(0))
		Expect(inv.visited).To(BeEmpty())
	})
})
