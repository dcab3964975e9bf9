package trace

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/tempo/internal/fiber"
	"github.com/roach88/tempo/internal/ir"
	"github.com/roach88/tempo/internal/timeval"
)

// Entry kinds.
const (
	KindBegin    = "begin"
	KindOp       = "op"
	KindFail     = "fail"
	KindEnd      = "end"
	KindProgress = "progress"
	KindUpdate   = "update"
	KindMark     = "mark"
)

// Entry is one recorded step. Fiber is 0 for update entries.
//
// Detail depends on Kind: the op kind for op entries, the error message for
// fail entries, the label for mark entries and "idle" for an update after
// which no fiber is left.
type Entry struct {
	Seq      int     `json:"seq"`
	Time     float64 `json:"t"`
	Fiber    int     `json:"fiber,omitempty"`
	Kind     string  `json:"kind"`
	IP       int     `json:"ip,omitempty"`
	Detail   string  `json:"detail,omitempty"`
	Progress float64 `json:"p,omitempty"`
}

// Canonical returns the entry as a generic object for canonical JSON. Only
// the fields meaningful for the kind are included.
func (e Entry) Canonical() map[string]any {
	m := map[string]any{"seq": e.Seq, "t": e.Time, "kind": e.Kind}
	if e.Fiber != 0 {
		m["fiber"] = e.Fiber
	}
	switch e.Kind {
	case KindOp:
		m["ip"] = e.IP
		m["op"] = e.Detail
	case KindFail:
		m["error"] = e.Detail
	case KindMark:
		m["label"] = e.Detail
	case KindProgress:
		m["p"] = e.Progress
	case KindUpdate:
		m["idle"] = e.Detail == "idle"
	}
	return m
}

// String formats the entry on one line.
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%4d %8s ", e.Seq, timeval.Format(e.Time))
	if e.Fiber != 0 {
		fmt.Fprintf(&b, "#%-3d ", e.Fiber)
	} else {
		b.WriteString("     ")
	}
	b.WriteString(e.Kind)
	switch e.Kind {
	case KindOp:
		fmt.Fprintf(&b, " %d %s", e.IP, e.Detail)
	case KindProgress:
		fmt.Fprintf(&b, " %g", e.Progress)
	case KindFail, KindMark:
		fmt.Fprintf(&b, " %q", e.Detail)
	case KindUpdate:
		if e.Detail != "" {
			b.WriteString(" " + e.Detail)
		}
	}
	return b.String()
}

// Canonical returns entries as generic objects for canonical JSON.
func Canonical(entries []Entry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.Canonical()
	}
	return out
}

// Digest is the content-addressed identity of a list of entries.
func Digest(entries []Entry) (string, error) {
	return ir.HashCanonical(ir.DomainTrace, Canonical(entries))
}

// Write writes entries to w, one per line.
func Write(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			return err
		}
	}
	return nil
}

// Clock is what a recorder needs from a scheduler.
type Clock interface {
	Now() float64
}

// Recorder is a fiber.Observer that records entries in memory.
type Recorder struct {
	clock   Clock
	entries []Entry
	updates bool
}

var _ fiber.Observer = (*Recorder)(nil)

// RecorderOption configures a recorder.
type RecorderOption func(*Recorder)

// WithUpdates records an entry at the end of every scheduler update.
func WithUpdates() RecorderOption {
	return func(r *Recorder) { r.updates = true }
}

// NewRecorder creates an empty recorder. Bind must be called before the
// scheduler runs.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind sets the clock used to timestamp entries, usually the scheduler.
func (r *Recorder) Bind(c Clock) {
	r.clock = c
}

// Entries returns the recorded entries.
func (r *Recorder) Entries() []Entry {
	return r.entries
}

// Digest returns the digest of the recorded entries.
func (r *Recorder) Digest() (string, error) {
	return Digest(r.entries)
}

// Mark records a mark made by fiber f.
func (r *Recorder) Mark(label string, f *fiber.ScheduledFiber) {
	r.add(Entry{Fiber: f.ID(), Kind: KindMark, Detail: label})
}

func (r *Recorder) add(e Entry) {
	e.Seq = len(r.entries) + 1
	if e.Kind != KindUpdate && r.clock != nil {
		e.Time = r.clock.Now()
	}
	r.entries = append(r.entries, e)
}

func (r *Recorder) FiberDidBegin(f *fiber.ScheduledFiber) {
	r.add(Entry{Fiber: f.ID(), Kind: KindBegin})
}

func (r *Recorder) OpWillRun(f *fiber.ScheduledFiber, ip int, kind fiber.OpKind) {
	r.add(Entry{Fiber: f.ID(), Kind: KindOp, IP: ip, Detail: string(kind)})
}

func (r *Recorder) FiberDidFail(f *fiber.ScheduledFiber, err error) {
	r.add(Entry{Fiber: f.ID(), Kind: KindFail, Detail: err.Error()})
}

func (r *Recorder) FiberDidEnd(f *fiber.ScheduledFiber) {
	r.add(Entry{Fiber: f.ID(), Kind: KindEnd})
}

func (r *Recorder) RampDidProgress(f *fiber.ScheduledFiber, p float64) {
	r.add(Entry{Fiber: f.ID(), Kind: KindProgress, Progress: p})
}

func (r *Recorder) SchedulerDidUpdate(begin, end float64, idle bool) {
	if !r.updates {
		return
	}
	e := Entry{Kind: KindUpdate, Time: end}
	if idle {
		e.Detail = "idle"
	}
	r.add(e)
}

// Run is a recorded scenario run.
type Run struct {
	ID            string
	Scenario      string
	ScenarioHash  string
	Digest        string
	FinalTime     float64
	Status        string
	EngineVersion string
	IRVersion     string
	Entries       []Entry
}

// Run statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)
