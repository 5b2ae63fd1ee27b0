package reagent

import (
	"sync"
)

// StreamMode is a named category of stream events a consumer subscribes
// to. Events outside the subscribed modes are not delivered.
type StreamMode string

const (
	// StreamModeValues delivers a full state snapshot after every
	// completed step.
	StreamModeValues StreamMode = "values"

	// StreamModeUpdates delivers phase transitions of the loop.
	StreamModeUpdates StreamMode = "updates"

	// StreamModeMessages delivers token deltas and completed messages.
	StreamModeMessages StreamMode = "messages"

	// StreamModeCustom delivers payloads emitted by tools through their
	// EventWriter.
	StreamModeCustom StreamMode = "custom"

	// StreamModeDebug delivers loop-internal trace lines.
	StreamModeDebug StreamMode = "debug"
)

// AllStreamModes lists every mode, in the order the loop documents them.
func AllStreamModes() []StreamMode {
	return []StreamMode{
		StreamModeValues,
		StreamModeUpdates,
		StreamModeMessages,
		StreamModeCustom,
		StreamModeDebug,
	}
}

// Phase is a state of the reasoning-act loop.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseThinking  Phase = "thinking"
	PhaseActing    Phase = "acting"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Event is one streamed occurrence inside a loop invocation. Which
// payload fields are set depends on Mode. Seq increases monotonically
// across all events of one invocation; within a single mode events are
// delivered in increasing Seq order. Cross-mode ordering is unspecified.
type Event struct {
	Mode StreamMode `json:"mode"`
	Seq  uint64     `json:"seq"`
	Step int        `json:"step"`

	// Phase is set on updates-mode events and on terminal markers.
	Phase Phase `json:"phase,omitempty"`

	// Delta is a token fragment (messages mode).
	Delta string `json:"delta,omitempty"`

	// Message is a completed transcript entry (messages mode).
	Message *Message `json:"message,omitempty"`

	// State is a snapshot after a completed step (values mode).
	State *State `json:"state,omitempty"`

	// Payload is a tool-emitted custom payload (custom mode).
	Payload map[string]any `json:"payload,omitempty"`

	// Trace is a loop-internal trace line (debug mode).
	Trace string `json:"trace,omitempty"`

	// Err is set on a terminal failed marker.
	Err string `json:"error,omitempty"`
}

// Terminal reports whether the event is a terminal marker. After a
// terminal event the subscription channel is closed.
func (e Event) Terminal() bool {
	switch e.Phase {
	case PhaseDone, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// Subscription is one consumer of a loop invocation's event stream.
type Subscription struct {
	mux   *multiplexer
	modes map[StreamMode]bool
	ch    chan Event

	closed bool
}

// C returns the event channel. It is closed after a terminal marker, or
// when the subscription itself is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close detaches the consumer. It never affects the running loop or
// other subscriptions, and is safe to call more than once.
func (s *Subscription) Close() {
	s.mux.unsubscribe(s)
}

func (s *Subscription) wants(mode StreamMode) bool {
	return s.modes[mode]
}

// multiplexer fans events from the single producer (the loop) out to any
// number of subscribers. Buffers are bounded per subscriber; when a slow
// consumer's buffer is full the oldest buffered event is dropped, so the
// producer never blocks. The policy is deterministic for a fixed buffer
// size because there is exactly one producer.
type multiplexer struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	seq    uint64
	buffer int
	done   bool
}

const defaultStreamBuffer = 64

func newMultiplexer(buffer int) *multiplexer {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &multiplexer{
		subs:   map[*Subscription]struct{}{},
		buffer: buffer,
	}
}

// subscribe registers a consumer for the given modes. No modes means all
// modes.
func (m *multiplexer) subscribe(modes ...StreamMode) *Subscription {
	if len(modes) == 0 {
		modes = AllStreamModes()
	}

	modeSet := make(map[StreamMode]bool, len(modes))
	for _, mode := range modes {
		modeSet[mode] = true
	}

	sub := &Subscription{
		mux:   m,
		modes: modeSet,
		ch:    make(chan Event, m.buffer),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	m.subs[sub] = struct{}{}
	return sub
}

func (m *multiplexer) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.closed {
		return
	}
	delete(m.subs, sub)
	close(sub.ch)
	sub.closed = true
}

// publish assigns the next sequence number and delivers the event to all
// subscribers of its mode.
func (m *multiplexer) publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}

	ev.Seq = m.seq
	m.seq++

	for sub := range m.subs {
		if sub.wants(ev.Mode) {
			m.deliver(sub, ev)
		}
	}
}

// deliver pushes an event into a subscriber buffer, dropping the oldest
// buffered event when full. Caller holds m.mu.
func (m *multiplexer) deliver(sub *Subscription, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	select {
	case <-sub.ch:
	default:
	}

	select {
	case sub.ch <- ev:
	default:
	}
}

// finish delivers a terminal marker to every subscriber regardless of
// mode, then closes all subscriptions. Further publishes are no-ops.
func (m *multiplexer) finish(step int, phase Phase, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	m.done = true

	ev := Event{
		Mode:  StreamModeUpdates,
		Seq:   m.seq,
		Step:  step,
		Phase: phase,
		Err:   errMsg,
	}
	m.seq++

	for sub := range m.subs {
		m.deliver(sub, ev)
		close(sub.ch)
		sub.closed = true
	}
	m.subs = map[*Subscription]struct{}{}
}

func (m *multiplexer) token(step int, delta string) {
	m.publish(Event{Mode: StreamModeMessages, Step: step, Delta: delta})
}

func (m *multiplexer) message(step int, msg Message) {
	m.publish(Event{Mode: StreamModeMessages, Step: step, Message: &msg})
}

func (m *multiplexer) update(step int, phase Phase, msg *Message) {
	m.publish(Event{Mode: StreamModeUpdates, Step: step, Phase: phase, Message: msg})
}

func (m *multiplexer) values(step int, state *State) {
	m.publish(Event{Mode: StreamModeValues, Step: step, State: state.Clone()})
}

func (m *multiplexer) custom(step int, payload map[string]any) {
	m.publish(Event{Mode: StreamModeCustom, Step: step, Payload: payload})
}

func (m *multiplexer) debug(step int, trace string) {
	m.publish(Event{Mode: StreamModeDebug, Step: step, Trace: trace})
}

// EventWriter is the explicit handle a tool uses to emit progress into
// the stream. There is no ambient writer: anything that emits events
// receives one of these.
type EventWriter interface {
	// Custom emits a payload into the custom stream mode.
	Custom(payload map[string]any)

	// Debug emits a trace line into the debug stream mode.
	Debug(msg string)
}

type muxWriter struct {
	mux  *multiplexer
	step int
}

func (w *muxWriter) Custom(payload map[string]any) {
	w.mux.custom(w.step, payload)
}

func (w *muxWriter) Debug(msg string) {
	w.mux.debug(w.step, msg)
}

type discardWriter struct{}

func (discardWriter) Custom(map[string]any) {}
func (discardWriter) Debug(string)          {}

// DiscardWriter drops every event. Useful for invoking tools outside a
// running loop, e.g. in tests.
var DiscardWriter EventWriter = discardWriter{}
