package cache

import (
	"context"
	"time"
)

// AvailableDonationsKey holds the cached open-donation listing. Every
// mutation that changes availability drops it.
const AvailableDonationsKey = "donations:available"

// BytesCache is a best-effort byte cache; callers must tolerate misses and
// errors without failing the request.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
