package report

import "context"

// Filter is the subset of Criteria a store can push down to its query. Empty fields match all.
type Filter struct {
	Status     Status
	Category   Category
	Department string
}

// Store persists reports. Save is a compare-and-swap: it must fail with ErrStaleWrite when the
// stored version is no longer expectedVersion. Create must fail with ErrDuplicateTrackingCode
// when the tracking code is taken.
type Store interface {
	TrackingStore
	Create(ctx context.Context, r Report) error
	FetchAll(ctx context.Context, f Filter) ([]Report, error)
	FetchByID(ctx context.Context, id string) (Report, error)
	Save(ctx context.Context, r Report, expectedVersion int64) error
}
