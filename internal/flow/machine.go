// Package flow owns the generative radar-creation flow: it turns
// debounced free-text input into a streamed, editable proposal and
// commits the confirmed proposal as a new radar. All transition logic
// runs on a single event-loop goroutine, so each transition runs to
// completion before the next event is looked at.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/radarhq/radar/internal/debounce"
	"github.com/radarhq/radar/internal/interpret"
	"github.com/radarhq/radar/internal/radar"
)

// State is the flow's current phase.
type State string

const (
	// StateInput: user is typing; no interpretation is active.
	StateInput State = "input"
	// StateInterpreting: a live interpretation request exists.
	StateInterpreting State = "interpreting"
	// StateReview: a final interpretation arrived; fields are editable.
	StateReview State = "review"
	// StateCreating: a confirmed creation call is in flight.
	StateCreating State = "creating"
	// StateComplete: the radar was created. Terminal for this instance.
	StateComplete State = "complete"
)

// defaultMinInputLen is the minimum settled input length that triggers
// an interpretation.
const defaultMinInputLen = 3

// InterpretCall is the live-call surface the machine drives. Satisfied
// by *interpret.Call.
type InterpretCall interface {
	Partial() <-chan interpret.Interpretation
	Final() <-chan interpret.Result
	Cancel()
}

// Interpreter issues streaming interpretation calls. The machine owns
// single-flight sequencing: it cancels an outgoing call before issuing
// a new one, synchronously in the same transition.
type Interpreter interface {
	Interpret(ctx context.Context, text string) (InterpretCall, error)
}

// ClientInterpreter adapts *interpret.Client to the Interpreter
// interface.
type ClientInterpreter struct {
	Client *interpret.Client
}

func (ci ClientInterpreter) Interpret(ctx context.Context, text string) (InterpretCall, error) {
	return ci.Client.Interpret(ctx, text)
}

// Creator persists a confirmed draft as a radar.
type Creator interface {
	Create(ctx context.Context, nr radar.NewRadar) (radar.Radar, error)
}

// Snapshot is an immutable view of the flow published after every
// transition.
type Snapshot struct {
	State          State                    `json:"state"`
	Input          string                   `json:"input"`
	Interpretation interpret.Interpretation `json:"interpretation"`
	Draft          Draft                    `json:"draft"`
	HasDraft       bool                     `json:"has_draft"`
	Created        radar.Radar              `json:"created,omitzero"`
	Error          string                   `json:"error,omitempty"`
}

// Options tunes a Machine.
type Options struct {
	// DebounceWindow is the input quiescence window. Defaults to
	// debounce.DefaultWindow.
	DebounceWindow time.Duration
	// MinInputLen is the minimum settled input length (in runes) that
	// triggers interpretation. Defaults to 3.
	MinInputLen int
	Logger      *slog.Logger
}

// Machine coordinates debounced input, the streaming interpretation
// call, user edits, and the creation call.
type Machine struct {
	interpreter Interpreter
	creator     Creator
	deb         *debounce.Debouncer
	minLen      int
	logger      *slog.Logger

	actions  chan action
	createCh chan createResult
	done     chan struct{}
	updates  chan Snapshot

	// Loop-owned state; only touched by Run's goroutine.
	state           State
	debounced       string
	interpretedText string
	cur             InterpretCall
	curPartial      <-chan interpret.Interpretation
	interp          interpret.Interpretation
	draft           Draft
	hasDraft        bool
	created         radar.Radar
	lastErr         string

	mu   sync.Mutex
	snap Snapshot
}

type actionKind int

const (
	actionConfirm actionKind = iota
	actionRestart
	actionSetField
)

type action struct {
	kind  actionKind
	field Field
	value string
}

type createResult struct {
	radar radar.Radar
	err   error
}

// New creates a Machine. Run must be called before the machine reacts
// to anything.
func New(interpreter Interpreter, creator Creator, opts Options) *Machine {
	minLen := opts.MinInputLen
	if minLen <= 0 {
		minLen = defaultMinInputLen
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		interpreter: interpreter,
		creator:     creator,
		deb:         debounce.New(opts.DebounceWindow),
		minLen:      minLen,
		logger:      logger,
		actions:     make(chan action),
		createCh:    make(chan createResult, 1),
		done:        make(chan struct{}),
		updates:     make(chan Snapshot, 1),
		state:       StateInput,
	}
	m.snap = m.buildSnapshot()
	return m
}

// Input feeds a keystroke-level text change into the debouncer. Safe to
// call from any goroutine.
func (m *Machine) Input(text string) {
	m.deb.Observe(text)
}

// Confirm asks the machine to commit the reviewed draft.
func (m *Machine) Confirm() { m.send(action{kind: actionConfirm}) }

// Restart discards the current proposal and returns to empty input.
func (m *Machine) Restart() { m.send(action{kind: actionRestart}) }

// SetTopic overrides the suggested topic.
func (m *Machine) SetTopic(v string) { m.send(action{kind: actionSetField, field: FieldTopic, value: v}) }

// SetDescription overrides the suggested description.
func (m *Machine) SetDescription(v string) {
	m.send(action{kind: actionSetField, field: FieldDescription, value: v})
}

// SetCadence overrides the suggested cadence.
func (m *Machine) SetCadence(v string) {
	m.send(action{kind: actionSetField, field: FieldCadence, value: v})
}

// Snapshot returns the latest published view of the flow.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Updates returns a conflated channel of snapshots: a slow consumer
// sees the latest state, not every intermediate one.
func (m *Machine) Updates() <-chan Snapshot {
	return m.updates
}

// Done is closed when Run returns.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

func (m *Machine) send(a action) {
	select {
	case m.actions <- a:
	case <-m.done:
	}
}

// Run drives the event loop until ctx is cancelled. Each case handles
// exactly one event and runs to completion; the debouncer's timer, the
// interpretation stream, and the creation call are the only suspension
// points, and all of them re-enter through channels selected here.
func (m *Machine) Run(ctx context.Context) {
	defer close(m.done)
	defer m.deb.Stop()

	m.publish()

	for {
		var finalCh <-chan interpret.Result
		if m.cur != nil {
			finalCh = m.cur.Final()
		}

		select {
		case <-ctx.Done():
			if m.cur != nil {
				m.cur.Cancel()
				m.cur = nil
				m.curPartial = nil
			}
			return

		case txt := <-m.deb.C():
			m.onDebounced(ctx, txt)

		case a := <-m.actions:
			m.onAction(ctx, a)

		case snap, ok := <-m.curPartial:
			if !ok {
				m.curPartial = nil
				continue
			}
			m.onPartial(snap)

		case res := <-finalCh:
			m.onFinal(res)

		case cr := <-m.createCh:
			m.onCreateResult(cr)
		}

		m.publish()
	}
}

// onDebounced handles a settled input value.
func (m *Machine) onDebounced(ctx context.Context, txt string) {
	m.debounced = txt

	switch m.state {
	case StateInput:
		m.maybeInterpret(ctx, txt)

	case StateInterpreting, StateReview:
		if txt == m.interpretedText {
			return
		}
		// The settled input no longer matches the text behind the
		// current interpretation: cancel, discard, and possibly
		// reissue for the new text, all in this one transition.
		m.invalidate()
		m.maybeInterpret(ctx, txt)

	case StateCreating, StateComplete:
		// A confirmed creation in flight is not cancellable by typing.
	}
}

// maybeInterpret issues a new interpretation if the settled text
// qualifies. Caller must have ensured no live call remains.
func (m *Machine) maybeInterpret(ctx context.Context, txt string) {
	if utf8.RuneCountInString(strings.TrimSpace(txt)) < m.minLen {
		return
	}

	call, err := m.interpreter.Interpret(ctx, txt)
	if err != nil {
		m.logger.Warn("interpretation request failed", "error", err)
		m.lastErr = "interpretation unavailable, keep typing or try again"
		return
	}

	m.cur = call
	m.curPartial = call.Partial()
	m.interpretedText = txt
	m.interp = interpret.Interpretation{}
	m.draft = Draft{}
	m.hasDraft = false
	m.lastErr = ""
	m.state = StateInterpreting
}

// invalidate cancels any live call and discards the proposal. Next
// state is input.
func (m *Machine) invalidate() {
	if m.cur != nil {
		m.cur.Cancel()
		m.cur = nil
		m.curPartial = nil
	}
	m.interpretedText = ""
	m.interp = interpret.Interpretation{}
	m.draft = Draft{}
	m.hasDraft = false
	m.lastErr = ""
	m.state = StateInput
}

// onPartial merges an incremental snapshot and refreshes the
// speculative draft. State is unchanged.
func (m *Machine) onPartial(snap interpret.Interpretation) {
	if m.state != StateInterpreting {
		return
	}
	m.interp = interpret.Merge(m.interp, snap)
	m.draft.applySuggestion(m.interp)
}

// onFinal settles the live call: a complete interpretation enters
// review; a failure returns to input with a user-visible message.
func (m *Machine) onFinal(res interpret.Result) {
	m.cur = nil
	m.curPartial = nil

	if res.Err != nil {
		if errors.Is(res.Err, interpret.ErrCancelled) {
			// Superseded request; already handled by the transition
			// that cancelled it.
			return
		}
		m.logger.Warn("interpretation failed", "error", res.Err)
		m.interp = interpret.Interpretation{}
		m.draft = Draft{}
		m.hasDraft = false
		m.lastErr = userMessage(res.Err)
		m.state = StateInput
		return
	}

	m.interp = res.Interpretation
	m.draft = newDraft(res.Interpretation)
	m.hasDraft = true
	m.lastErr = ""
	m.state = StateReview
}

func (m *Machine) onAction(ctx context.Context, a action) {
	switch a.kind {
	case actionRestart:
		if m.state == StateCreating || m.state == StateComplete {
			return
		}
		m.invalidate()
		m.debounced = ""

	case actionSetField:
		if m.state != StateReview {
			return
		}
		m.draft.set(a.field, a.value)

	case actionConfirm:
		if m.state != StateReview {
			return
		}
		if !m.draft.complete() {
			m.lastErr = "topic and cadence are required"
			return
		}
		if m.debounced != m.interpretedText {
			m.lastErr = "input changed since interpretation; review the new proposal"
			return
		}
		m.lastErr = ""
		m.state = StateCreating

		nr := radar.NewRadar{
			Topic:               m.draft.Topic,
			Description:         m.draft.Description,
			Cadence:             m.draft.Cadence,
			ScheduleDescription: m.draft.ScheduleDescription,
			Intent:              m.draft.Intent,
		}
		go func() {
			r, err := m.creator.Create(ctx, nr)
			select {
			case m.createCh <- createResult{radar: r, err: err}:
			case <-ctx.Done():
			}
		}()
	}
}

// onCreateResult finishes or rolls back the creation. On failure the
// draft survives so the user can retry from review.
func (m *Machine) onCreateResult(cr createResult) {
	if m.state != StateCreating {
		return
	}
	if cr.err != nil {
		m.logger.Warn("radar creation failed", "error", cr.err)
		m.lastErr = userMessage(cr.err)
		m.state = StateReview
		return
	}
	m.created = cr.radar
	m.lastErr = ""
	m.state = StateComplete
	m.logger.Info("radar created", "radar_id", cr.radar.ID, "topic", cr.radar.Topic)
}

func (m *Machine) buildSnapshot() Snapshot {
	return Snapshot{
		State:          m.state,
		Input:          m.debounced,
		Interpretation: m.interp,
		Draft:          m.draft,
		HasDraft:       m.hasDraft,
		Created:        m.created,
		Error:          m.lastErr,
	}
}

// publish stores the latest snapshot and offers it on the conflated
// updates channel.
func (m *Machine) publish() {
	snap := m.buildSnapshot()

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()

	select {
	case <-m.updates:
	default:
	}
	select {
	case m.updates <- snap:
	default:
	}
}

// userMessage maps an error to the inline message shown in the flow.
func userMessage(err error) string {
	var ie *interpret.InterpretError
	if errors.As(err, &ie) {
		return ie.Message
	}
	var ce *radar.CreationError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
