package ir

// Scenario is a declarative fiber program run on a manual clock.
//
// The clock is stepped to every time in Steps, then to every frame of
// Until (by Step), in increasing order. Actions scheduled at time t run
// right after the update that ends at t; their effects are visible at the
// next step.
type Scenario struct {
	// Name uniquely identifies the scenario (and names its golden file).
	Name string `yaml:"name" json:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// MaxRuns overrides the runaway guard of the scheduler when > 0.
	MaxRuns int `yaml:"max_runs,omitempty" json:"max_runs,omitempty"`

	// Fibers are the top-level fibers, scheduled before the clock starts.
	Fibers []FiberSpec `yaml:"fibers" json:"fibers"`

	// Steps are explicit clock times.
	Steps []Time `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Until is the last clock time when stepping by frames.
	Until *Time `yaml:"until,omitempty" json:"until,omitempty"`

	// Step is the frame duration used with Until. Default: Until (a single
	// update).
	Step *Time `yaml:"step,omitempty" json:"step,omitempty"`

	// Actions act on the scheduler from outside any fiber.
	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty"`

	// Expect lists the checks made on fibers after the last step.
	Expect []Expectation `yaml:"expect,omitempty" json:"expect,omitempty"`

	// Marks is the expected sequence of mark ops, as "label@time".
	Marks []string `yaml:"marks,omitempty" json:"marks,omitempty"`
}

// FiberSpec describes a top-level fiber.
type FiberSpec struct {
	// Name registers the fiber in the scheduler; actions and expectations
	// refer to it.
	Name string `yaml:"name" json:"name"`

	// At is the begin time. Default: 0.
	At *Time `yaml:"at,omitempty" json:"at,omitempty"`

	// Rate is the initial rate of the fiber. Default: 1.
	Rate *float64 `yaml:"rate,omitempty" json:"rate,omitempty"`

	// Ops is the fiber program.
	Ops []Op `yaml:"ops" json:"ops"`
}

// Op is one instruction of a program. Exactly one field must be set; the
// field name is the op kind.
type Op struct {
	Value  *Literal   `yaml:"value,omitempty" json:"value,omitempty"`
	Fail   string     `yaml:"fail,omitempty" json:"fail,omitempty"`
	Mark   string     `yaml:"mark,omitempty" json:"mark,omitempty"`
	Delay  *Time      `yaml:"delay,omitempty" json:"delay,omitempty"`
	Ramp   *Time      `yaml:"ramp,omitempty" json:"ramp,omitempty"`
	Spawn  []Op       `yaml:"spawn,omitempty" json:"spawn,omitempty"`
	Seq    []Op       `yaml:"seq,omitempty" json:"seq,omitempty"`
	Join   *string    `yaml:"join,omitempty" json:"join,omitempty"`
	Repeat *Repeat    `yaml:"repeat,omitempty" json:"repeat,omitempty"`
	Each   []Op       `yaml:"each,omitempty" json:"each,omitempty"`
	Map    []Op       `yaml:"map,omitempty" json:"map,omitempty"`
	Ever   []Op       `yaml:"ever,omitempty" json:"ever,omitempty"`
	Either *Either    `yaml:"either,omitempty" json:"either,omitempty"`
	Named  string     `yaml:"named,omitempty" json:"named,omitempty"`
	Store  string     `yaml:"store,omitempty" json:"store,omitempty"`
	Load   string     `yaml:"load,omitempty" json:"load,omitempty"`
	Event  *EventWait `yaml:"event,omitempty" json:"event,omitempty"`
	Notify *Notify    `yaml:"notify,omitempty" json:"notify,omitempty"`
	Rate   *float64   `yaml:"rate,omitempty" json:"rate,omitempty"`
	Cancel string     `yaml:"cancel,omitempty" json:"cancel,omitempty"`
}

// Op kinds, as written in documents.
const (
	OpValue  = "value"
	OpFail   = "fail"
	OpMark   = "mark"
	OpDelay  = "delay"
	OpRamp   = "ramp"
	OpSpawn  = "spawn"
	OpSeq    = "seq"
	OpJoin   = "join"
	OpRepeat = "repeat"
	OpEach   = "each"
	OpMap    = "map"
	OpEver   = "ever"
	OpEither = "either"
	OpNamed  = "named"
	OpStore  = "store"
	OpLoad   = "load"
	OpEvent  = "event"
	OpNotify = "notify"
	OpRate   = "rate"
	OpCancel = "cancel"
)

// Kinds returns the kinds set on op. A valid op has exactly one.
func (op *Op) Kinds() []string {
	var kinds []string
	add := func(set bool, kind string) {
		if set {
			kinds = append(kinds, kind)
		}
	}
	add(op.Value != nil, OpValue)
	add(op.Fail != "", OpFail)
	add(op.Mark != "", OpMark)
	add(op.Delay != nil, OpDelay)
	add(op.Ramp != nil, OpRamp)
	add(op.Spawn != nil, OpSpawn)
	add(op.Seq != nil, OpSeq)
	add(op.Join != nil, OpJoin)
	add(op.Repeat != nil, OpRepeat)
	add(op.Each != nil, OpEach)
	add(op.Map != nil, OpMap)
	add(op.Ever != nil, OpEver)
	add(op.Either != nil, OpEither)
	add(op.Named != "", OpNamed)
	add(op.Store != "", OpStore)
	add(op.Load != "", OpLoad)
	add(op.Event != nil, OpEvent)
	add(op.Notify != nil, OpNotify)
	add(op.Rate != nil, OpRate)
	add(op.Cancel != "", OpCancel)
	return kinds
}

// Kind returns the kind of a valid op, or "" when zero or several kinds
// are set.
func (op *Op) Kind() string {
	if kinds := op.Kinds(); len(kinds) == 1 {
		return kinds[0]
	}
	return ""
}

// Join kinds.
const (
	JoinNone   = "none"
	JoinAll    = "all"
	JoinLast   = "last"
	JoinFirst  = "first"
	JoinGate   = "gate"
	JoinSingle = "single"
)

// JoinKinds lists the valid join kinds. An empty string means JoinNone.
var JoinKinds = []string{JoinNone, JoinAll, JoinLast, JoinFirst, JoinGate, JoinSingle}

// Repeat is a loop. Without Times it only ends with an error.
type Repeat struct {
	Times *int `yaml:"times,omitempty" json:"times,omitempty"`
	Ops   []Op `yaml:"ops" json:"ops"`
}

// Either is a try/catch block.
type Either struct {
	Value []Op `yaml:"value,omitempty" json:"value,omitempty"`
	Error []Op `yaml:"error,omitempty" json:"error,omitempty"`
}

// EventWait waits for an event on the scheduler bus.
type EventWait struct {
	Source string `yaml:"source" json:"source"`
	Type   string `yaml:"type" json:"type"`
}

// Notify sends an event on the scheduler bus.
type Notify struct {
	Source  string   `yaml:"source" json:"source"`
	Type    string   `yaml:"type" json:"type"`
	Payload *Literal `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Action acts on the scheduler at a clock time. Exactly one of Notify,
// Cancel and Rate must be set.
type Action struct {
	At     Time        `yaml:"at" json:"at"`
	Notify *Notify     `yaml:"notify,omitempty" json:"notify,omitempty"`
	Cancel string      `yaml:"cancel,omitempty" json:"cancel,omitempty"`
	Rate   *RateChange `yaml:"rate,omitempty" json:"rate,omitempty"`
}

// RateChange sets the rate of a named fiber.
type RateChange struct {
	Fiber string  `yaml:"fiber" json:"fiber"`
	Rate  float64 `yaml:"rate" json:"rate"`
}

// Expectation checks the final state of a named fiber. Unset fields are
// not checked.
type Expectation struct {
	Fiber string `yaml:"fiber" json:"fiber"`

	// Value is compared through canonical JSON.
	Value *Literal `yaml:"value,omitempty" json:"value,omitempty"`

	// Error is a substring of the fiber error; "" expects no error.
	Error *string `yaml:"error,omitempty" json:"error,omitempty"`

	// Cancelled expects the fiber to be (or not be) cancelled.
	Cancelled *bool `yaml:"cancelled,omitempty" json:"cancelled,omitempty"`

	// Ended expects the fiber to have (or not have) ended.
	Ended *bool `yaml:"ended,omitempty" json:"ended,omitempty"`

	// Now is the expected local time of the fiber.
	Now *Time `yaml:"now,omitempty" json:"now,omitempty"`
}
