package services

import (
	"context"
	"sync"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]domain.RoutingRecord
	err     error // returned by every call when set
	lookups int
}

func newFakeRepo(records ...domain.RoutingRecord) *fakeRepo {
	r := &fakeRepo{records: map[string]domain.RoutingRecord{}}
	for _, rec := range records {
		r.records[rec.Key] = rec
	}
	return r
}

func (r *fakeRepo) Lookup(_ context.Context, key string) (*domain.RoutingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (r *fakeRepo) InsertIfAbsent(_ context.Context, rec *domain.RoutingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.records[rec.Key]; ok {
		return domain.ErrAlreadyExists
	}
	r.records[rec.Key] = *rec
	return nil
}

func (r *fakeRepo) UpdateTarget(_ context.Context, key, targetURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.TargetURL = targetURL
	r.records[key] = rec
	return nil
}

func (r *fakeRepo) Dump(context.Context) ([]domain.RoutingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RoutingRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeRepo) IncrementHits(_ context.Context, key string) (int64, error) {
	return r.IncrementHitsBelow(context.Background(), key, -1)
}

// IncrementHitsBelow treats a negative ceiling as uncapped.
func (r *fakeRepo) IncrementHitsBelow(_ context.Context, key string, ceiling int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if ceiling >= 0 && rec.Hits >= ceiling {
		return 0, domain.ErrCapReached
	}
	rec.Hits++
	r.records[key] = rec
	return rec.Hits, nil
}

func (r *fakeRepo) hits(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[key].Hits
}

type recordingNotifier struct {
	mu     sync.Mutex
	urls   []string
	events []domain.ResolutionEvent
	ctxErr []error
}

func (n *recordingNotifier) Dispatch(ctx context.Context, url string, event domain.ResolutionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	n.events = append(n.events, event)
	n.ctxErr = append(n.ctxErr, ctx.Err())
}
