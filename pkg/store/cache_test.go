package store

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/rounds/pkg/model"
)

type fakeStore struct {
	signatures map[string]*model.Signature
	byFP       map[string]*model.Signature
	calls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{signatures: map[string]*model.Signature{}, byFP: map[string]*model.Signature{}}
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*model.Signature, error) {
	f.calls++
	return f.signatures[id], nil
}

func (f *fakeStore) GetByFingerprint(ctx context.Context, fp string) (*model.Signature, error) {
	f.calls++
	return f.byFP[fp], nil
}

func (f *fakeStore) put(sig *model.Signature) {
	f.signatures[sig.ID] = sig
	f.byFP[sig.Fingerprint] = sig
}

func (f *fakeStore) Save(ctx context.Context, sig *model.Signature) error   { f.put(sig); return nil }
func (f *fakeStore) Update(ctx context.Context, sig *model.Signature) error { f.put(sig); return nil }
func (f *fakeStore) GetPendingInvestigation(ctx context.Context) ([]model.Signature, error) {
	return nil, nil
}
func (f *fakeStore) GetAll(ctx context.Context) ([]model.Signature, error) { return nil, nil }
func (f *fakeStore) GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]model.Signature, error) {
	return nil, nil
}
func (f *fakeStore) GetStats(ctx context.Context) (model.StoreStats, error) {
	return model.StoreStats{}, nil
}

var _ = Describe("RedisCache", func() {
	var (
		mr    *miniredis.Miniredis
		inner *fakeStore
		cache *RedisCache
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		inner = newFakeStore()
		cache = NewRedisCache(inner, mr.Addr(), time.Minute)
		ctx = context.Background()
	})

	AfterEach(func() {
		cache.Close()
		mr.Close()
	})

	It("serves a second GetByID from cache without calling the wrapped store again", func() {
		sig := &model.Signature{ID: "sig-1", Fingerprint: "fp-1", Service: "api"}
		inner.put(sig)

		first, err := cache.GetByID(ctx, "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.ID).To(Equal("sig-1"))
		Expect(inner.calls).To(Equal(1))

		second, err := cache.GetByID(ctx, "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(second.ID).To(Equal("sig-1"))
		Expect(inner.calls).To(Equal(1), "second read should be served from Redis, not the wrapped store")
	})

	It("invalidates the cache entry on Update, so the next read reflects the new state", func() {
		sig := &model.Signature{ID: "sig-1", Fingerprint: "fp-1", Status: model.StatusNew}
		inner.put(sig)
		_, err := cache.GetByID(ctx, "sig-1")
		Expect(err).NotTo(HaveOccurred())

		updated := *sig
		updated.Status = model.StatusMuted
		Expect(cache.Update(ctx, &updated)).To(Succeed())

		fresh, err := cache.GetByID(ctx, "sig-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.Status).To(Equal(model.StatusMuted))
		Expect(inner.calls).To(Equal(2), "post-invalidation read must reach the wrapped store")
	})

	It("falls through to the wrapped store when Redis is unreachable", func() {
		mr.Close()
		sig := &model.Signature{ID: "sig-2", Fingerprint: "fp-2"}
		inner.put(sig)

		got, err := cache.GetByID(ctx, "sig-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal("sig-2"))
	})

	It("round-trips GetByFingerprint through the cache", func() {
		sig := &model.Signature{ID: "sig-3", Fingerprint: "fp-3"}
		inner.put(sig)

		first, err := cache.GetByFingerprint(ctx, "fp-3")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Fingerprint).To(Equal("fp-3"))

		calls := inner.calls
		second, err := cache.GetByFingerprint(ctx, "fp-3")
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Fingerprint).To(Equal("fp-3"))
		Expect(inner.calls).To(Equal(calls))
	})
})
