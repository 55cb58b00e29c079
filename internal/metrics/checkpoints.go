package metrics

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfOrder is returned when a stage is marked after a later stage was already marked.
var ErrOutOfOrder = errors.New("checkpoint marked out of order")

// Stage is a pipeline boundary with a checkpoint.
type Stage int

// Stages in pipeline order.
const (
	StageReceived Stage = iota
	StageDecoded
	StageSignal
	StageSimulated
	StageConstructed
	StageSent
	stageCount
)

var stageNames = [stageCount]string{"received", "decoded", "signal", "simulated", "constructed", "sent"}

func (s Stage) String() string {
	if s < 0 || s >= stageCount {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Derived metric names, in microseconds.
const (
	MetricDecode          = "decode_us"
	MetricSignalDetection = "signal_detection_us"
	MetricSimulation      = "simulation_us"
	MetricConstruction    = "construction_us"
	MetricEndToEnd        = "end_to_end_us"
)

// MetricNames lists the derived metrics in report order.
var MetricNames = []string{
	MetricDecode,
	MetricSignalDetection,
	MetricSimulation,
	MetricConstruction,
	MetricEndToEnd,
}

// Checkpoints records when one opportunity crossed each stage.
//
// The Mark methods are the only mutation path. A stage already marked keeps
// its first timestamp. Marking a stage after any later stage is set returns
// ErrOutOfOrder and changes nothing, so the populated subset is always
// non-decreasing in stage order. Not safe for concurrent use; one owner
// per pipeline pass.
type Checkpoints struct {
	marks [stageCount]time.Time
	set   [stageCount]bool
	now   func() time.Time
}

// NewCheckpoints starts a record received now.
func NewCheckpoints() *Checkpoints {
	return NewCheckpointsWithClock(time.Now)
}

// NewCheckpointsAt starts a record received at t.
func NewCheckpointsAt(t time.Time) *Checkpoints {
	c := &Checkpoints{now: time.Now}
	c.marks[StageReceived] = t
	c.set[StageReceived] = true
	return c
}

// NewCheckpointsWithClock starts a record using clock for every mark.
func NewCheckpointsWithClock(clock func() time.Time) *Checkpoints {
	c := &Checkpoints{now: clock}
	c.marks[StageReceived] = clock()
	c.set[StageReceived] = true
	return c
}

func (c *Checkpoints) MarkDecoded() error     { return c.Mark(StageDecoded) }
func (c *Checkpoints) MarkSignal() error      { return c.Mark(StageSignal) }
func (c *Checkpoints) MarkSimulated() error   { return c.Mark(StageSimulated) }
func (c *Checkpoints) MarkConstructed() error { return c.Mark(StageConstructed) }
func (c *Checkpoints) MarkSent() error        { return c.Mark(StageSent) }

// Mark records now for stage unless already set.
func (c *Checkpoints) Mark(stage Stage) error {
	if stage <= StageReceived || stage >= stageCount {
		return fmt.Errorf("mark %s: not a markable stage", stage)
	}
	if c.set[stage] {
		return nil
	}
	for later := stage + 1; later < stageCount; later++ {
		if c.set[later] {
			return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, stage, later)
		}
	}

	t := c.now()
	// A clock that steps backwards must not break ordering.
	if prev, ok := c.latestBefore(stage); ok && t.Before(prev) {
		t = prev
	}
	c.marks[stage] = t
	c.set[stage] = true
	return nil
}

func (c *Checkpoints) latestBefore(stage Stage) (time.Time, bool) {
	for s := stage - 1; s >= StageReceived; s-- {
		if c.set[s] {
			return c.marks[s], true
		}
	}
	return time.Time{}, false
}

// At returns the timestamp of stage if set.
func (c *Checkpoints) At(stage Stage) (time.Time, bool) {
	if stage < 0 || stage >= stageCount || !c.set[stage] {
		return time.Time{}, false
	}
	return c.marks[stage], true
}

// Received returns the start of the record.
func (c *Checkpoints) Received() time.Time {
	return c.marks[StageReceived]
}

func (c *Checkpoints) between(from, to Stage) (time.Duration, bool) {
	if !c.set[from] || !c.set[to] {
		return 0, false
	}
	return c.marks[to].Sub(c.marks[from]), true
}

func (c *Checkpoints) Decode() (time.Duration, bool) {
	return c.between(StageReceived, StageDecoded)
}

func (c *Checkpoints) SignalDetection() (time.Duration, bool) {
	return c.between(StageDecoded, StageSignal)
}

func (c *Checkpoints) Simulation() (time.Duration, bool) {
	return c.between(StageSignal, StageSimulated)
}

func (c *Checkpoints) Construction() (time.Duration, bool) {
	return c.between(StageSimulated, StageConstructed)
}

func (c *Checkpoints) EndToEnd() (time.Duration, bool) {
	return c.between(StageReceived, StageSent)
}

// Latencies returns the present derived durations in microseconds.
func (c *Checkpoints) Latencies() map[string]float64 {
	out := make(map[string]float64, len(MetricNames))
	add := func(name string, d time.Duration, ok bool) {
		if ok {
			out[name] = float64(d.Nanoseconds()) / 1e3
		}
	}
	d, ok := c.Decode()
	add(MetricDecode, d, ok)
	d, ok = c.SignalDetection()
	add(MetricSignalDetection, d, ok)
	d, ok = c.Simulation()
	add(MetricSimulation, d, ok)
	d, ok = c.Construction()
	add(MetricConstruction, d, ok)
	d, ok = c.EndToEnd()
	add(MetricEndToEnd, d, ok)
	return out
}
