package trigger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/clip"
	"github.com/ayusman/mudra/internal/events"
)

// DefaultDebounce is how long hands may be absent before an open recording is stopped.
const DefaultDebounce = 2500 * time.Millisecond

// defaultStopTimeout bounds how long the recorder may take to finalize a clip.
const defaultStopTimeout = 10 * time.Second

var (
	// ErrModeLocked is returned when the mode is changed while recording.
	ErrModeLocked = errors.New("mode cannot change while recording")
	// ErrWrongMode is returned for manual controls used in automatic mode.
	ErrWrongMode = errors.New("not available in automatic mode")
	// ErrBusy is returned when a record request arrives while one is already active.
	ErrBusy = errors.New("recording already requested")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("trigger machine closed")
)

// Recorder opens and closes the single recording session.
type Recorder interface {
	Start() error
	// Stop finalizes the open session. With no open session it returns an
	// empty clip and a nil error.
	Stop(ctx context.Context) (clip.Clip, error)
	// Clear discards the recorder's held result.
	Clear()
}

// ClipHandler consumes finished clips.
type ClipHandler interface {
	HandleClip(ctx context.Context, c clip.Clip) error
}

// ClipHandlerFunc adapts a function to ClipHandler.
type ClipHandlerFunc func(ctx context.Context, c clip.Clip) error

// HandleClip calls f(ctx, c).
func (f ClipHandlerFunc) HandleClip(ctx context.Context, c clip.Clip) error { return f(ctx, c) }

// Config configures a Machine.
type Config struct {
	Mode        Mode
	Debounce    time.Duration
	StopTimeout time.Duration
	Scheduler   Scheduler
}

// Machine is the recording trigger state machine. It is the only caller of
// Recorder.Start and Recorder.Stop, so at most one recording session is open.
type Machine struct {
	rec         Recorder
	handler     ClipHandler
	sink        events.Sink
	sched       Scheduler
	debounce    time.Duration
	stopTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	mode     Mode
	hands    bool
	pending  Cancel // deferred stop armed while hands are absent
	gen      uint64 // invalidates deferred stops that lost a race with cancellation
	stopping bool   // recorder is finalizing a clip
	inflight int    // clips not yet released by the handler
	// autoBlocked suppresses automatic restarts after a failed start until
	// hands leave the frame or the mode changes.
	autoBlocked bool
	closed      bool
}

// New creates a Machine in the Idle state.
func New(rec Recorder, handler ClipHandler, sink events.Sink, cfg Config) *Machine {
	if cfg.Mode == "" {
		cfg.Mode = ModeManual
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = SystemScheduler()
	}
	if sink == nil {
		sink = events.Discard
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		rec:         rec,
		handler:     handler,
		sink:        sink,
		sched:       cfg.Scheduler,
		debounce:    cfg.Debounce,
		stopTimeout: cfg.StopTimeout,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		mode:        cfg.Mode,
	}
	m.publishStateLocked(ReasonStartup)
	return m
}

// State returns the current trigger state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Snapshot returns state, mode, and hand presence together.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Mode: m.mode, Hands: m.hands, InFlight: m.inflight}
}

// SetMode switches between manual and automatic mode. It is rejected while a
// recording session is open. Any pending deferred stop is cancelled.
func (m *Machine) SetMode(mode Mode) error {
	if mode != ModeManual && mode != ModeAutomatic {
		return fmt.Errorf("unknown mode %q", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state == StateRecording {
		return ErrModeLocked
	}

	m.cancelPendingLocked()
	m.autoBlocked = false

	if mode == m.mode {
		return nil
	}
	m.mode = mode

	if m.state == StateWaitingForHands {
		m.setStateLocked(StateIdle, ReasonModeChanged)
		return nil
	}
	m.publishStateLocked(ReasonModeChanged)
	return nil
}

// Record handles the manual "record" control. With hands in view recording
// starts at once; otherwise the machine waits for hands.
func (m *Machine) Record() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.mode != ModeManual {
		return ErrWrongMode
	}
	if m.state == StateRecording || m.state == StateWaitingForHands || m.stopping {
		return ErrBusy
	}

	if m.hands {
		return m.startLocked(ReasonManualStart)
	}
	m.setStateLocked(StateWaitingForHands, ReasonWaitingForHands)
	return nil
}

// Stop handles the manual "stop" control, which doubles as "cancel" while
// waiting for hands. Without an open session it does nothing.
func (m *Machine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	switch m.state {
	case StateWaitingForHands:
		m.setStateLocked(StateIdle, ReasonCancelled)
	case StateRecording:
		if m.mode != ModeManual {
			return ErrWrongMode
		}
		m.stopLocked(ReasonManualStop)
	}
	return nil
}

// Observe feeds one hand presence sample. Samples may be dropped or arrive
// irregularly; only their order matters.
func (m *Machine) Observe(present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if present != m.hands {
		m.hands = present
		m.sink.Publish(events.Event{Type: events.TypeHands, Hands: present, Time: time.Now()})
	}
	if !present {
		m.autoBlocked = false
	}

	switch m.state {
	case StateIdle:
		if present && m.mode == ModeAutomatic && m.inflight == 0 && !m.autoBlocked {
			if err := m.startLocked(ReasonHandsAppeared); err != nil {
				m.autoBlocked = true
			}
		}
	case StateWaitingForHands:
		if present {
			_ = m.startLocked(ReasonHandsAppeared)
		}
	case StateRecording:
		if present {
			m.cancelPendingLocked()
		} else if m.pending == nil {
			m.armStopLocked()
		}
	}
}

// Close cancels any pending stop, discards an open recording, cancels clips in
// flight, and waits for them to be released.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelPendingLocked()
	wasRecording := m.state == StateRecording
	m.setStateLocked(StateIdle, ReasonShutdown)
	m.mu.Unlock()

	if wasRecording {
		ctx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
		if _, err := m.rec.Stop(ctx); err != nil {
			log.Printf("discard recording on shutdown: %v", err)
		}
		cancel()
		m.rec.Clear()
	}

	m.cancel()
	m.wg.Wait()
}

func (m *Machine) startLocked(reason Reason) error {
	if err := m.rec.Start(); err != nil {
		log.Printf("start recording: %v", err)
		m.setStateLocked(StateIdle, ReasonStartFailed)
		m.sink.Publish(events.Notice(events.CodeRecorderStartFailed, "Could not start recording: "+err.Error()))
		return fmt.Errorf("start recording: %w", err)
	}
	m.setStateLocked(StateRecording, reason)
	return nil
}

func (m *Machine) stopLocked(reason Reason) {
	m.cancelPendingLocked()
	m.stopping = true
	m.inflight++
	m.setStateLocked(StateProcessing, reason)

	m.wg.Add(1)
	go m.process()
}

// process finalizes the recording and hands the clip to the handler.
func (m *Machine) process() {
	defer m.wg.Done()

	stopCtx, cancel := context.WithTimeout(m.ctx, m.stopTimeout)
	c, err := m.rec.Stop(stopCtx)
	cancel()

	m.mu.Lock()
	m.stopping = false
	m.mu.Unlock()

	if err != nil {
		log.Printf("stop recording: %v", err)
		m.sink.Publish(events.Notice(events.CodeRecorderStopFailed, "Recording could not be saved: "+err.Error()))
		m.rec.Clear()
		m.finishProcessing(ReasonEmptyClip)
		return
	}
	if c.Empty() {
		m.rec.Clear()
		m.finishProcessing(ReasonEmptyClip)
		return
	}

	if m.handler != nil {
		if err := m.handler.HandleClip(m.ctx, c); err != nil {
			log.Printf("handle clip: %v", err)
		}
	}
	m.rec.Clear()
	m.finishProcessing(ReasonPipelineDone)
}

func (m *Machine) finishProcessing(reason Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inflight--
	if m.closed {
		return
	}
	if m.state == StateProcessing && m.inflight == 0 {
		m.setStateLocked(StateIdle, reason)
	}
}

func (m *Machine) armStopLocked() {
	m.gen++
	gen := m.gen
	m.pending = m.sched.AfterFunc(m.debounce, func() {
		m.debounceExpired(gen)
	})
}

func (m *Machine) debounceExpired(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || gen != m.gen || m.pending == nil || m.state != StateRecording {
		return
	}
	m.pending = nil
	m.stopLocked(ReasonHandsGone)
}

func (m *Machine) cancelPendingLocked() {
	if m.pending != nil {
		m.pending()
		m.pending = nil
	}
	m.gen++
}

func (m *Machine) setStateLocked(state State, reason Reason) {
	m.state = state
	m.publishStateLocked(reason)
}

func (m *Machine) publishStateLocked(reason Reason) {
	m.sink.Publish(events.Event{
		Type:   events.TypeState,
		State:  string(m.state),
		Mode:   string(m.mode),
		Reason: string(reason),
		Time:   time.Now(),
	})
}
