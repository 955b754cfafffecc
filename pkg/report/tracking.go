package report

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	TrackingCodeLength = 8
	trackingAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewTrackingCode returns a random, already-normalized tracking code.
func NewTrackingCode() (string, error) {
	result := make([]byte, TrackingCodeLength)
	n := big.NewInt(int64(len(trackingAlphabet)))
	for i := range result {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("failed to generate tracking code: %w", err)
		}
		result[i] = trackingAlphabet[idx.Int64()]
	}
	return string(result), nil
}

// NormalizeTrackingCode upper-cases a code typed by a person and drops a leading '#'.
// The second result is false when the code cannot possibly exist.
func NormalizeTrackingCode(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	c = strings.TrimPrefix(c, "#")
	if len(c) != TrackingCodeLength {
		return "", false
	}
	for i := 0; i < len(c); i++ {
		if strings.IndexByte(trackingAlphabet, c[i]) < 0 {
			return "", false
		}
	}
	return c, true
}

// TrackingStore is the constrained lookup the public tracking page is allowed to use.
// Implementations must answer with a single-row query on the tracking code.
type TrackingStore interface {
	FetchByTrackingCode(ctx context.Context, code string) (Report, error)
}

type Tracker struct {
	store TrackingStore
}

func NewTracker(store TrackingStore) *Tracker {
	return &Tracker{store: store}
}

func (t *Tracker) FindByTrackingCode(ctx context.Context, code string) (Report, error) {
	normalized, ok := NormalizeTrackingCode(code)
	if !ok {
		return Report{}, fmt.Errorf("%w: no report with tracking code %q", ErrNotFound, code)
	}
	return t.store.FetchByTrackingCode(ctx, normalized)
}
