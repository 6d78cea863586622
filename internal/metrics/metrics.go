package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Webhook counts inbound payment notifications by outcome.
type Webhook struct {
	Received   Counter
	Settled    Counter
	Ignored    Counter
	Rejected   Counter
	HandleFail Counter
	Panics     Counter

	// nanoseconds
	totalLatency Counter
}

func (w *Webhook) ObserveLatency(d time.Duration) {
	if d > 0 {
		w.totalLatency.Add(uint64(d))
	}
}

func (w *Webhook) Snapshot() map[string]uint64 {
	received := w.Received.Load()
	avg := uint64(0)
	if received > 0 {
		avg = w.totalLatency.Load() / received / uint64(time.Millisecond)
	}
	return map[string]uint64{
		"received":       received,
		"settled":        w.Settled.Load(),
		"ignored":        w.Ignored.Load(),
		"rejected":       w.Rejected.Load(),
		"handle_failed":  w.HandleFail.Load(),
		"panics":         w.Panics.Load(),
		"avg_latency_ms": avg,
	}
}
