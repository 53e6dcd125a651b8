// Package health serves the /livez and /readyz probes of the shop API.
//
// Checks run periodically in the background and flip state only after a run
// of consecutive results, so a single slow database ping does not pull the
// instance out of rotation.
package health

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

// Check describes a registered check.
type Check struct {
	Name    string
	Probe   Probe
	Timeout time.Duration
	Func    CheckFunc
	// FailAfter consecutive failures mark the check unhealthy. Defaults to 3.
	FailAfter int
	// PassAfter consecutive successes mark it healthy again. Defaults to 1.
	PassAfter int
}

// state is owned by one runner goroutine except for the atomics, which the
// HTTP handlers read.
type state struct {
	Check
	healthy atomic.Bool
	lastErr atomic.Pointer[string]
	fails   int
	passes  int
}

func (s *state) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	if err := s.Func(ctx); err != nil {
		msg := err.Error()
		s.lastErr.Store(&msg)
		s.passes = 0
		if s.fails++; s.fails >= s.FailAfter {
			s.healthy.Store(false)
		}
		return
	}
	s.lastErr.Store(nil)
	s.fails = 0
	if s.passes++; s.passes >= s.PassAfter {
		s.healthy.Store(true)
	}
}

// failure returns the message reported for an unhealthy check.
func (s *state) failure() string {
	if msg := s.lastErr.Load(); msg != nil {
		return *msg
	}
	return "check is unhealthy"
}

// Health tracks check states and the serving flag.
type Health struct {
	serving atomic.Bool

	mu     sync.RWMutex
	checks []*state
}

// New returns a Health that is not serving yet.
func New() *Health {
	return &Health{}
}

// Add registers c. Checks start healthy until they fail enough times.
func (h *Health) Add(c Check) {
	if c.FailAfter <= 0 {
		c.FailAfter = 3
	}
	if c.PassAfter <= 0 {
		c.PassAfter = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	s := &state{Check: c}
	s.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

func (h *Health) snapshot(p Probe) []*state {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*state
	for _, s := range h.checks {
		if s.Probe == p {
			out = append(out, s)
		}
	}
	return out
}

// Run executes every check once immediately and then every interval until
// ctx is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range checks {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				s.observe(ctx)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// SetServing marks the instance as accepting traffic. It is set after
// startup and cleared when draining before shutdown.
func (h *Health) SetServing(v bool) {
	h.serving.Store(v)
}

// Ready reports whether the instance is serving and every readiness check
// passes.
func (h *Health) Ready() bool {
	return h.serving.Load() && len(failures(h.snapshot(Readiness))) == 0
}

func failures(checks []*state) map[string]string {
	out := make(map[string]string)
	for _, s := range checks {
		if !s.healthy.Load() {
			out[s.Name] = s.failure()
		}
	}
	return out
}

// LiveHandler serves /livez.
func (h *Health) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, report{failed: failures(h.snapshot(Liveness))})
}

// ReadyHandler serves /readyz. A draining instance reports "_readiness".
func (h *Health) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(Readiness))
	if !h.serving.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeReport(w, report{failed: failed})
}

// report is the probe response: {"status":"ok"} or
// {"status":"unhealthy","checks":{name:error}}.
type report struct {
	failed map[string]string
}

func (r report) status() (string, int) {
	if len(r.failed) > 0 {
		return "unhealthy", http.StatusServiceUnavailable
	}
	return "ok", http.StatusOK
}

// Encode writes the report with checks in name order.
func (r report) Encode(e *jx.Encoder) {
	status, _ := r.status()
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	if len(r.failed) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range slices.Sorted(maps.Keys(r.failed)) {
			e.FieldStart(name)
			e.Str(r.failed[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func writeReport(w http.ResponseWriter, r report) {
	_, code := r.status()
	e := &jx.Encoder{}
	r.Encode(e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
