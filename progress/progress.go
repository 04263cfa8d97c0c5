// Package progress fans scan state updates out to live subscribers. Delivery
// is synchronous and in registration order; a panicking subscriber is
// isolated and never blocks the others. Terminal scans are evicted after a
// grace period so late subscribers briefly still see the final state.
package progress

import (
	"log/slog"
	"sync"
	"time"
)

// PageError records one page that failed during crawling.
type PageError struct {
	Page      string    `json:"page"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata carries the summary counters attached near the end of a scan.
type Metadata struct {
	TotalViolations int `json:"totalViolations"`
	CriticalIssues  int `json:"criticalIssues"`
	QuickWins       int `json:"quickWins"`
	OverallScore    int `json:"overallScore"`
}

// State is the progress snapshot consumed by real-time UI subscribers. The
// JSON field names are a wire contract; do not rename them.
type State struct {
	ScanID          string      `json:"scanId"`
	Status          string      `json:"status"`
	Progress        int         `json:"progress"` // 0..100
	CurrentStep     string      `json:"currentStep"`
	PagesDiscovered int         `json:"pagesDiscovered"`
	PagesCrawled    int         `json:"pagesCrawled"`
	CurrentPage     string      `json:"currentPage,omitempty"`
	Errors          []PageError `json:"errors"`
	Metadata        *Metadata   `json:"metadata,omitempty"`
}

// Terminal reports whether the state's status ends the scan lifecycle.
func (s State) Terminal() bool {
	return s.Status == "completed" || s.Status == "failed"
}

// Options tunes the broadcaster.
type Options struct {
	// TTL is how long a terminal scan entry stays available for late
	// subscribers before eviction. Default: 60s.
	TTL time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type subscriber struct {
	id int
	fn func(State)
}

type scanEntry struct {
	state    State
	hasState bool
	subs     []subscriber
	evict    *time.Timer
}

// Broadcaster is the per-scan subscription registry. Safe for concurrent use.
type Broadcaster struct {
	opts Options

	mu      sync.Mutex
	scans   map[string]*scanEntry
	metrics []subscriber
	nextID  int
}

// New creates a Broadcaster.
func New(opts Options) *Broadcaster {
	opts.defaults()
	return &Broadcaster{
		opts:  opts,
		scans: map[string]*scanEntry{},
	}
}

// Subscribe registers fn for one scan's updates and returns an unsubscribe
// handle. If the scan already has a state, fn receives it immediately.
func (b *Broadcaster) Subscribe(scanID string, fn func(State)) (unsubscribe func()) {
	b.mu.Lock()
	e, ok := b.scans[scanID]
	if !ok {
		e = &scanEntry{}
		b.scans[scanID] = e
	}
	b.nextID++
	id := b.nextID
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	replay := e.hasState
	st := e.state
	b.mu.Unlock()

	if replay {
		b.deliver(subscriber{id: id, fn: fn}, st)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		e, ok := b.scans[scanID]
		if !ok {
			return
		}
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeMetrics registers a global listener that receives every update
// for every scan. Returns an unsubscribe handle.
func (b *Broadcaster) SubscribeMetrics(fn func(State)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.metrics = append(b.metrics, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.metrics {
			if s.id == id {
				b.metrics = append(b.metrics[:i], b.metrics[i+1:]...)
				break
			}
		}
	}
}

// Publish stores the new state and synchronously notifies the scan's
// subscribers in registration order, then the global metrics listeners.
// A terminal state arms the eviction timer; subscribers always get the final
// update before the entry disappears.
func (b *Broadcaster) Publish(scanID string, st State) {
	st.ScanID = scanID
	if st.Errors == nil {
		st.Errors = []PageError{}
	}

	b.mu.Lock()
	e, ok := b.scans[scanID]
	if !ok {
		e = &scanEntry{}
		b.scans[scanID] = e
	}
	e.state = st
	e.hasState = true

	subs := make([]subscriber, len(e.subs))
	copy(subs, e.subs)
	metrics := make([]subscriber, len(b.metrics))
	copy(metrics, b.metrics)

	if st.Terminal() && e.evict == nil {
		e.evict = time.AfterFunc(b.opts.TTL, func() { b.remove(scanID) })
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, st)
	}
	for _, s := range metrics {
		b.deliver(s, st)
	}
}

// Current returns the last published state for a scan, if any.
func (b *Broadcaster) Current(scanID string) (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.scans[scanID]
	if !ok || !e.hasState {
		return State{}, false
	}
	return e.state, true
}

// Active returns the number of scan entries currently held.
func (b *Broadcaster) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scans)
}

func (b *Broadcaster) remove(scanID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.scans, scanID)
}

// deliver invokes one subscriber, containing panics so a broken listener
// cannot take down delivery to the rest.
func (b *Broadcaster) deliver(s subscriber, st State) {
	defer func() {
		if r := recover(); r != nil {
			b.opts.Logger.Warn("progress: subscriber panicked",
				"scan_id", st.ScanID, "panic", r)
		}
	}()
	s.fn(st)
}
