package readiness

import (
	"sync"
	"time"
)

// State is the unified per-session readiness the glossary names:
// {busy, prompt, permission, waiting, ready}. Output-marker inference
// contributes busy/prompt/none; pane-change inference contributes
// working/permission/waiting. Engine.Status folds both into one value.
type State string

const (
	StateBusy       State = "busy"
	StatePrompt     State = "prompt"
	StatePermission State = "permission"
	StateWaiting    State = "waiting"
	StateReady      State = "ready"
)

const defaultGrace = 2 * time.Second

type perSession struct {
	tail        *Tail
	family      AgentFamily
	lastSignal  Signal
	cache       *PaneCacheState
	paneState   PaneState
	lastInputAt time.Time
	lastState   State
}

// TransitionFunc is notified once per session whenever the combined
// readiness state actually changes. source is "marker" or "pane",
// naming which inference path triggered it — the single choke point
// both FeedOutput and UpdatePane report through, so a caller never
// double-records the same transition.
type TransitionFunc func(id string, state State, source string)

// Engine owns per-session tails and pane caches, all keyed by PTY id and
// cleared on exit, per spec §3's ownership rule.
type Engine struct {
	mu           sync.Mutex
	sessions     map[string]*perSession
	onTransition TransitionFunc
}

func NewEngine() *Engine {
	return &Engine{sessions: make(map[string]*perSession)}
}

// SetTransitionHook registers the callback invoked on every readiness
// state change. Called outside the engine's lock.
func (e *Engine) SetTransitionHook(fn TransitionFunc) {
	e.mu.Lock()
	e.onTransition = fn
	e.mu.Unlock()
}

func (e *Engine) get(id string, family AgentFamily) *perSession {
	s, ok := e.sessions[id]
	if !ok {
		s = &perSession{tail: NewTail(), family: family, paneState: PaneWaiting, lastState: StateReady}
		e.sessions[id] = s
	}
	return s
}

// FeedOutput appends an output chunk to the session's rolling tail and
// returns the output-marker classification of the resulting state — at
// most one tail mutation per chunk, per spec §5's ordering guarantee.
func (e *Engine) FeedOutput(id string, chunk []byte, family AgentFamily) Signal {
	e.mu.Lock()
	s := e.get(id, family)
	s.tail.Append(chunk)
	s.lastSignal = Classify(s.tail.String(), family)
	signal := s.lastSignal
	changed, state := e.noteTransition(s)
	e.mu.Unlock()
	if changed {
		e.fireTransition(id, state, "marker")
	}
	return signal
}

// MarkInput feeds user keystrokes to the engine: it records the input
// time and clears the marker-derived busy/prompt signal, so the next
// output chunk classifies afresh. The pane-derived state (including
// permission) is left as it is until the next pane sample, and no
// transition is reported from here.
func (e *Engine) MarkInput(id string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return
	}
	s.lastInputAt = time.Now()
	s.lastSignal = SignalNone
}

// UpdatePane runs one step of the pane-change inference for a tmux-backed
// session and folds the result into the session's overall readiness.
func (e *Engine) UpdatePane(id, content string, width, height int, grace time.Duration) (PaneState, time.Duration) {
	if grace <= 0 {
		grace = defaultGrace
	}
	e.mu.Lock()
	s := e.get(id, FamilyOther)
	state, cache, wait := Evaluate(s.cache, content, width, height, grace, time.Now())
	s.cache = &cache
	s.paneState = state
	changed, combined := e.noteTransition(s)
	e.mu.Unlock()
	if changed {
		e.fireTransition(id, combined, "pane")
	}
	return state, wait
}

// combinedState folds both inference paths into one value. Marker-derived
// busy/prompt take precedence over pane-derived state, since the marker
// path observes raw bytes the instant they're produced while the pane
// path is sampled.
func combinedState(s *perSession) State {
	switch s.lastSignal {
	case SignalBusy:
		return StateBusy
	case SignalPrompt:
		return StatePrompt
	}
	switch s.paneState {
	case PaneWorking:
		return StateBusy
	case PanePermission:
		return StatePermission
	case PaneWaiting:
		return StateWaiting
	}
	return StateReady
}

// noteTransition must be called with e.mu held. It updates s.lastState
// and reports whether the combined state just changed.
func (e *Engine) noteTransition(s *perSession) (bool, State) {
	state := combinedState(s)
	if state == s.lastState {
		return false, state
	}
	s.lastState = state
	return true, state
}

func (e *Engine) fireTransition(id string, state State, source string) {
	e.mu.Lock()
	hook := e.onTransition
	e.mu.Unlock()
	if hook != nil {
		hook(id, state, source)
	}
}

// Status returns the unified readiness for a session, combining whichever
// inference paths have reported for it.
func (e *Engine) Status(id string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return StateReady
	}
	return combinedState(s)
}

// Clear releases a session's tail and pane cache, called on exit per
// spec §3's "cleared on exit" ownership rule.
func (e *Engine) Clear(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}
