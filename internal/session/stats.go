package session

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/charmbracelet/log"
)

// Stats summarises a session. Latencies are in microseconds.
type Stats struct {
	Session  string           `msgpack:"session" json:"session"`
	Fields   int              `msgpack:"fields" json:"fields"`
	Bindings int              `msgpack:"bindings" json:"bindings"`
	Requests int64            `msgpack:"requests" json:"requests"`
	Lookups  int64            `msgpack:"lookups" json:"lookups"`
	Latency  map[string]int64 `msgpack:"latency_us" json:"latencyMicros"`
}

// latency records how long input events take to be matched. For lists
// answered by a remote backend it is the duration of the lookup itself.
type latency struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func newLatency() *latency {
	// 1µs to 10s with three significant digits.
	return &latency{hist: hdrhistogram.New(1, 10_000_000, 3)}
}

func (l *latency) record(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if highest := l.hist.HighestTrackableValue(); us > highest {
		log.Debugf("Lookup took %v, recording it as %dµs", d, highest)
		us = highest
	}
	if err := l.hist.RecordValue(us); err != nil {
		log.Warnf("Recording latency: %v", err)
	}
}

func (l *latency) count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hist.TotalCount()
}

func (l *latency) quantiles() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hist.TotalCount() == 0 {
		return map[string]int64{}
	}
	return map[string]int64{
		"q50":  l.hist.ValueAtQuantile(50.0),
		"q95":  l.hist.ValueAtQuantile(95.0),
		"q99":  l.hist.ValueAtQuantile(99.0),
		"q100": l.hist.Max(),
	}
}
