package trigger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/clip"
	"github.com/ayusman/mudra/internal/events"
)

// fakeScheduler runs deferred actions on virtual time advanced by the test.
type fakeScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*fakeTask
}

type fakeTask struct {
	at        time.Duration
	f         func()
	fired     bool
	cancelled bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &fakeTask{at: s.now + d, f: f}
	s.tasks = append(s.tasks, task)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if task.fired || task.cancelled {
			return false
		}
		task.cancelled = true
		return true
	}
}

// AdvanceTo moves virtual time to t, firing due tasks in order.
func (s *fakeScheduler) AdvanceTo(t time.Duration) {
	for {
		s.mu.Lock()
		var due []*fakeTask
		for _, task := range s.tasks {
			if !task.fired && !task.cancelled && task.at <= t {
				due = append(due, task)
			}
		}
		if len(due) == 0 {
			if t > s.now {
				s.now = t
			}
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
		next := due[0]
		next.fired = true
		s.now = next.at
		s.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of armed tasks.
func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, task := range s.tasks {
		if !task.fired && !task.cancelled {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu       sync.Mutex
	open     bool
	starts   int
	stops    int
	clears   int
	startErr error
	stopErr  error
	clip     clip.Clip
}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	if r.open {
		return errors.New("double start")
	}
	r.open = true
	r.starts++
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) (clip.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return clip.Clip{}, nil
	}
	r.open = false
	r.stops++
	if r.stopErr != nil {
		return clip.Clip{}, r.stopErr
	}
	return r.clip, nil
}

func (r *fakeRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *fakeRecorder) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

type fakeHandler struct {
	mu      sync.Mutex
	clips   []clip.Clip
	release chan struct{}
	entered chan struct{}
}

func newBlockingHandler() *fakeHandler {
	return &fakeHandler{release: make(chan struct{}), entered: make(chan struct{}, 8)}
}

func (h *fakeHandler) HandleClip(ctx context.Context, c clip.Clip) error {
	h.mu.Lock()
	h.clips = append(h.clips, c)
	h.mu.Unlock()

	if h.entered != nil {
		h.entered <- struct{}{}
	}
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *fakeHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clips)
}

type fakeSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *fakeSink) Publish(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *fakeSink) notices() []events.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	var codes []events.Code
	for _, e := range s.events {
		if e.Type == events.TypeNotice {
			codes = append(codes, e.Code)
		}
	}
	return codes
}

func (s *fakeSink) reasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reasons []string
	for _, e := range s.events {
		if e.Type == events.TypeState {
			reasons = append(reasons, e.Reason)
		}
	}
	return reasons
}

type harness struct {
	machine  *Machine
	sched    *fakeScheduler
	recorder *fakeRecorder
	handler  *fakeHandler
	sink     *fakeSink
}

func newHarness(t *testing.T, mode Mode) *harness {
	t.Helper()

	h := &harness{
		sched:    &fakeScheduler{},
		recorder: &fakeRecorder{clip: clip.Clip{Data: []byte("clip"), MimeType: "video/webm"}},
		handler:  &fakeHandler{},
		sink:     &fakeSink{},
	}
	h.machine = New(h.recorder, h.handler, h.sink, Config{
		Mode:      mode,
		Debounce:  DefaultDebounce,
		Scheduler: h.sched,
	})
	t.Cleanup(h.machine.Close)
	return h
}

// settle waits for clips in flight to be released.
func (h *harness) settle() {
	h.machine.wg.Wait()
}

func waitForState(t *testing.T, m *Machine, want State) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for m.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", m.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}
