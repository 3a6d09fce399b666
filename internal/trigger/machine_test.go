package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/clip"
	"github.com/ayusman/mudra/internal/events"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "manual", want: ModeManual},
		{in: "Automatic", want: ModeAutomatic},
		{in: " auto ", want: ModeAutomatic},
		{in: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMachine_StartsIdle(t *testing.T) {
	h := newHarness(t, ModeManual)

	snap := h.machine.Snapshot()
	if snap.State != StateIdle || snap.Mode != ModeManual || snap.Hands {
		t.Errorf("initial snapshot = %+v", snap)
	}
}

func TestMachine_ManualRecordWithHandsStartsImmediately(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.machine.Observe(true)

	if err := h.machine.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := h.machine.State(); got != StateRecording {
		t.Errorf("state = %s, want %s", got, StateRecording)
	}
	if starts, _ := h.recorder.counts(); starts != 1 {
		t.Errorf("starts = %d, want 1", starts)
	}
}

func TestMachine_ManualRecordWaitsForHands(t *testing.T) {
	h := newHarness(t, ModeManual)

	if err := h.machine.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := h.machine.State(); got != StateWaitingForHands {
		t.Fatalf("state = %s, want %s", got, StateWaitingForHands)
	}
	if starts, _ := h.recorder.counts(); starts != 0 {
		t.Fatalf("starts = %d, want 0 while waiting", starts)
	}

	h.machine.Observe(false)
	if got := h.machine.State(); got != StateWaitingForHands {
		t.Fatalf("absent sample moved state to %s", got)
	}

	h.machine.Observe(true)
	h.machine.Observe(true)
	if got := h.machine.State(); got != StateRecording {
		t.Fatalf("state = %s, want %s", got, StateRecording)
	}
	if starts, _ := h.recorder.counts(); starts != 1 {
		t.Errorf("starts = %d, want exactly 1", starts)
	}
}

func TestMachine_CancelWhileWaiting(t *testing.T) {
	h := newHarness(t, ModeManual)

	h.machine.Record()
	if err := h.machine.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := h.machine.State(); got != StateIdle {
		t.Fatalf("state = %s, want %s", got, StateIdle)
	}

	h.machine.Observe(true)
	if starts, _ := h.recorder.counts(); starts != 0 {
		t.Errorf("cancelled request still started recording")
	}
}

func TestMachine_RecordRejectedWhenBusy(t *testing.T) {
	h := newHarness(t, ModeManual)

	h.machine.Record()
	if err := h.machine.Record(); !errors.Is(err, ErrBusy) {
		t.Errorf("second Record() error = %v, want ErrBusy", err)
	}

	h.machine.Observe(true)
	if err := h.machine.Record(); !errors.Is(err, ErrBusy) {
		t.Errorf("Record() while recording error = %v, want ErrBusy", err)
	}
	if starts, _ := h.recorder.counts(); starts != 1 {
		t.Errorf("starts = %d, want 1", starts)
	}
}

func TestMachine_ManualControlsRejectedInAutomaticMode(t *testing.T) {
	h := newHarness(t, ModeAutomatic)

	if err := h.machine.Record(); !errors.Is(err, ErrWrongMode) {
		t.Errorf("Record() error = %v, want ErrWrongMode", err)
	}

	h.machine.Observe(true)
	if err := h.machine.Stop(); !errors.Is(err, ErrWrongMode) {
		t.Errorf("Stop() error = %v, want ErrWrongMode", err)
	}
	if got := h.machine.State(); got != StateRecording {
		t.Errorf("state = %s, want %s", got, StateRecording)
	}
}

func TestMachine_ManualStopHandsClipToHandler(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.machine.Observe(true)
	h.machine.Record()
	h.machine.Observe(false) // arms the deferred stop

	if err := h.machine.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	h.settle()

	if _, stops := h.recorder.counts(); stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
	if h.handler.count() != 1 {
		t.Errorf("handler clips = %d, want 1", h.handler.count())
	}
	if h.sched.Pending() != 0 {
		t.Errorf("manual stop left %d timers armed", h.sched.Pending())
	}

	// The cancelled timer must not produce a second stop.
	h.sched.AdvanceTo(10 * time.Second)
	if _, stops := h.recorder.counts(); stops != 1 {
		t.Errorf("stops after advancing = %d, want 1", stops)
	}
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
}

func TestMachine_StopWithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t, ModeManual)

	if err := h.machine.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, stops := h.recorder.counts(); stops != 0 {
		t.Errorf("stops = %d, want 0", stops)
	}
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
	for _, reason := range h.sink.reasons() {
		if reason == string(ReasonManualStop) {
			t.Errorf("stop without a session published a stop transition")
		}
	}
}

func TestMachine_ShortAbsenceDoesNotStop(t *testing.T) {
	gaps := []time.Duration{
		10 * time.Millisecond,
		time.Second,
		DefaultDebounce - time.Millisecond,
	}

	for _, gap := range gaps {
		t.Run(gap.String(), func(t *testing.T) {
			h := newHarness(t, ModeAutomatic)
			h.machine.Observe(true)

			h.machine.Observe(false)
			h.sched.AdvanceTo(gap)
			h.machine.Observe(true)
			h.sched.AdvanceTo(gap + 10*DefaultDebounce)

			if _, stops := h.recorder.counts(); stops != 0 {
				t.Errorf("absence of %s produced %d stops", gap, stops)
			}
			if got := h.machine.State(); got != StateRecording {
				t.Errorf("state = %s, want %s", got, StateRecording)
			}
		})
	}
}

func TestMachine_LongAbsenceStopsOnce(t *testing.T) {
	gaps := []time.Duration{DefaultDebounce, DefaultDebounce + time.Second, time.Minute}

	for _, gap := range gaps {
		t.Run(gap.String(), func(t *testing.T) {
			h := newHarness(t, ModeAutomatic)
			h.machine.Observe(true)
			h.machine.Observe(false)

			// Repeated absent samples must not re-arm the timer.
			for step := time.Duration(0); step < gap; step += 100 * time.Millisecond {
				h.sched.AdvanceTo(step)
				h.machine.Observe(false)
			}
			h.sched.AdvanceTo(gap)
			h.settle()

			if _, stops := h.recorder.counts(); stops != 1 {
				t.Errorf("stops = %d, want exactly 1", stops)
			}
		})
	}
}

func TestMachine_AutomaticScenario(t *testing.T) {
	h := newHarness(t, ModeAutomatic)
	s := time.Second

	h.machine.Observe(true) // t=0
	if starts, _ := h.recorder.counts(); starts != 1 {
		t.Fatalf("starts at t=0 = %d, want 1", starts)
	}

	h.sched.AdvanceTo(1 * s)
	h.machine.Observe(false) // t=1.0

	h.sched.AdvanceTo(2 * s)
	h.machine.Observe(true) // t=2.0, timer cancelled

	h.sched.AdvanceTo(3 * s)
	h.machine.Observe(false) // t=3.0, absent from here on

	h.sched.AdvanceTo(3400 * time.Millisecond) // t=1.0+2.4
	if _, stops := h.recorder.counts(); stops != 0 {
		t.Fatalf("stop at t=3.4s")
	}
	h.sched.AdvanceTo(3500 * time.Millisecond) // when the cancelled timer would have fired
	if _, stops := h.recorder.counts(); stops != 0 {
		t.Fatalf("cancelled timer fired at t=3.5s")
	}
	h.sched.AdvanceTo(5499 * time.Millisecond)
	if _, stops := h.recorder.counts(); stops != 0 {
		t.Fatalf("stop before t=5.5s")
	}

	h.sched.AdvanceTo(5500 * time.Millisecond)
	h.settle()
	if _, stops := h.recorder.counts(); stops != 1 {
		t.Fatalf("stops at t=5.5s = %d, want 1", stops)
	}
	if h.handler.count() != 1 {
		t.Errorf("handler clips = %d, want 1", h.handler.count())
	}
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
}

func TestMachine_EmptyClipSkipsHandler(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.recorder.clip = clip.Clip{}

	h.machine.Observe(true)
	h.machine.Record()
	h.machine.Stop()
	h.settle()

	if h.handler.count() != 0 {
		t.Errorf("handler invoked for empty clip")
	}
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
	reasons := h.sink.reasons()
	if last := reasons[len(reasons)-1]; last != string(ReasonEmptyClip) {
		t.Errorf("last reason = %s, want %s", last, ReasonEmptyClip)
	}
}

func TestMachine_ModeLockedWhileRecording(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.machine.Observe(true)
	h.machine.Record()

	if err := h.machine.SetMode(ModeAutomatic); !errors.Is(err, ErrModeLocked) {
		t.Fatalf("SetMode() error = %v, want ErrModeLocked", err)
	}
	snap := h.machine.Snapshot()
	if snap.Mode != ModeManual || snap.State != StateRecording {
		t.Errorf("snapshot after rejected toggle = %+v", snap)
	}
}

func TestMachine_ModeChangeFromWaitingReturnsToIdle(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.machine.Record()

	if err := h.machine.SetMode(ModeAutomatic); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
}

func TestMachine_ModeChangeDuringProcessingLeavesNoTimer(t *testing.T) {
	h := newHarness(t, ModeAutomatic)
	h.handler = newBlockingHandler()
	h.machine.handler = h.handler

	h.machine.Observe(true)
	h.machine.Observe(false)
	h.sched.AdvanceTo(DefaultDebounce)
	<-h.handler.entered

	if got := h.machine.State(); got != StateProcessing {
		t.Fatalf("state = %s, want %s", got, StateProcessing)
	}
	if err := h.machine.SetMode(ModeManual); err != nil {
		t.Fatalf("SetMode() during processing error = %v", err)
	}
	if h.sched.Pending() != 0 {
		t.Errorf("timers armed after mode change: %d", h.sched.Pending())
	}

	close(h.handler.release)
	h.settle()
	h.sched.AdvanceTo(time.Minute)

	if starts, stops := h.recorder.counts(); starts != 1 || stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", starts, stops)
	}
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
}

func TestMachine_ProcessingSuppressesAutoStart(t *testing.T) {
	h := newHarness(t, ModeAutomatic)
	h.handler = newBlockingHandler()
	h.machine.handler = h.handler

	h.machine.Observe(true)
	h.machine.Observe(false)
	h.sched.AdvanceTo(DefaultDebounce)
	<-h.handler.entered

	h.machine.Observe(true)
	if starts, _ := h.recorder.counts(); starts != 1 {
		t.Fatalf("auto start while processing: starts = %d", starts)
	}

	close(h.handler.release)
	waitForState(t, h.machine, StateIdle)

	h.machine.Observe(true)
	if starts, _ := h.recorder.counts(); starts != 2 {
		t.Errorf("starts after pipeline completion = %d, want 2", starts)
	}
}

func TestMachine_ManualRecordAcceptedWhilePipelineRuns(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.handler = newBlockingHandler()
	h.machine.handler = h.handler

	h.machine.Observe(true)
	h.machine.Record()
	h.machine.Stop()
	<-h.handler.entered

	if err := h.machine.Record(); err != nil {
		t.Fatalf("Record() during pipeline error = %v", err)
	}
	if got := h.machine.State(); got != StateRecording {
		t.Fatalf("state = %s, want %s", got, StateRecording)
	}

	close(h.handler.release)
	h.settle()

	// Completion of the earlier clip must not pull the new session to Idle.
	if got := h.machine.State(); got != StateRecording {
		t.Errorf("state after earlier pipeline finished = %s, want %s", got, StateRecording)
	}
}

func TestMachine_StartFailureFallsBackToIdle(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.recorder.startErr = errors.New("codec unsupported")
	h.machine.Observe(true)

	if err := h.machine.Record(); err == nil {
		t.Fatal("Record() should report the start failure")
	}
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
	notices := h.sink.notices()
	if len(notices) != 1 || notices[0] != events.CodeRecorderStartFailed {
		t.Errorf("notices = %v, want [%s]", notices, events.CodeRecorderStartFailed)
	}
}

func TestMachine_AutoStartFailureIsNotRetriedEveryFrame(t *testing.T) {
	h := newHarness(t, ModeAutomatic)
	h.recorder.startErr = errors.New("no stream")

	for i := 0; i < 10; i++ {
		h.machine.Observe(true)
	}
	if got := len(h.sink.notices()); got != 1 {
		t.Fatalf("notices = %d, want 1", got)
	}

	h.recorder.mu.Lock()
	h.recorder.startErr = nil
	h.recorder.mu.Unlock()

	h.machine.Observe(false)
	h.machine.Observe(true)
	if got := h.machine.State(); got != StateRecording {
		t.Errorf("state after hands returned = %s, want %s", got, StateRecording)
	}
}

func TestMachine_StopFailureReportsNotice(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.recorder.stopErr = errors.New("disk full")

	h.machine.Observe(true)
	h.machine.Record()
	h.machine.Stop()
	h.settle()

	if h.handler.count() != 0 {
		t.Errorf("handler invoked after failed stop")
	}
	notices := h.sink.notices()
	if len(notices) != 1 || notices[0] != events.CodeRecorderStopFailed {
		t.Errorf("notices = %v", notices)
	}
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
}

func TestMachine_CloseDiscardsOpenSession(t *testing.T) {
	h := newHarness(t, ModeAutomatic)
	h.machine.Observe(true)
	h.machine.Observe(false)

	h.machine.Close()

	if h.sched.Pending() != 0 {
		t.Errorf("Close left %d timers armed", h.sched.Pending())
	}
	if _, stops := h.recorder.counts(); stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
	if h.handler.count() != 0 {
		t.Errorf("discarded clip reached the handler")
	}

	h.machine.Observe(true)
	if starts, _ := h.recorder.counts(); starts != 1 {
		t.Errorf("closed machine started recording")
	}
	if err := h.machine.Record(); !errors.Is(err, ErrClosed) {
		t.Errorf("Record() after Close error = %v, want ErrClosed", err)
	}
}

func TestMachine_CloseCancelsInFlightClip(t *testing.T) {
	h := newHarness(t, ModeManual)
	h.handler = newBlockingHandler()
	h.machine.handler = h.handler

	h.machine.Observe(true)
	h.machine.Record()
	h.machine.Stop()
	<-h.handler.entered

	done := make(chan struct{})
	go func() {
		h.machine.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the in-flight handler")
	}
}

func TestMachine_PublishesHandsChangesOnly(t *testing.T) {
	h := newHarness(t, ModeManual)

	for _, present := range []bool{true, true, false, false, true} {
		h.machine.Observe(present)
	}

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	n := 0
	for _, e := range h.sink.events {
		if e.Type == events.TypeHands {
			n++
		}
	}
	if n != 3 {
		t.Errorf("hands events = %d, want 3", n)
	}
}
