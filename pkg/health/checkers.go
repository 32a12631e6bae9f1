package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is anything that can verify a connection, such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// GoroutineCountCheck reports unhealthy when the goroutine count exceeds
// threshold, which usually means requests are leaking goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// PoolSaturationCheck reports unhealthy when the fraction of acquired
// connections reaches limit. stat returns acquired and maximum connections.
func PoolSaturationCheck(stat func() (acquired, total int32), limit float64) CheckFunc {
	return func(context.Context) error {
		acquired, total := stat()
		if total <= 0 {
			return nil
		}
		if ratio := float64(acquired) / float64(total); ratio >= limit {
			return errors.Errorf("pool saturated: %d of %d connections in use", acquired, total)
		}
		return nil
	}
}
