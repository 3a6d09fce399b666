package detector

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

// fakeSource hands out a new sequence number on every call unless frozen.
type fakeSource struct {
	mu     sync.Mutex
	seq    uint64
	frozen bool
	empty  bool
}

func (s *fakeSource) Latest() (*gocv.Mat, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.empty {
		return nil, 0, false
	}
	if !s.frozen {
		s.seq++
	}
	m := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	return &m, s.seq, true
}

type sampleLog struct {
	mu      sync.Mutex
	samples []bool
}

func (l *sampleLog) add(present bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, present)
}

func (l *sampleLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples)
}

func skipWithoutGoCV(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}
}

func TestPoller_Sample(t *testing.T) {
	skipWithoutGoCV(t)

	src := &fakeSource{}
	det := NewMockDetector()
	p := NewPoller(src, det, nil, func(bool) {})

	det.SetPresent(true)
	if present, ok := p.sample(); !ok || !present {
		t.Errorf("sample() = %v, %v, want true, true", present, ok)
	}

	det.SetPresent(false)
	if present, ok := p.sample(); !ok || present {
		t.Errorf("sample() = %v, %v, want false, true", present, ok)
	}
}

func TestPoller_SkipsRepeatedFrame(t *testing.T) {
	skipWithoutGoCV(t)

	src := &fakeSource{}
	det := NewMockDetector()
	p := NewPoller(src, det, nil, func(bool) {})

	if _, ok := p.sample(); !ok {
		t.Fatal("first frame should produce a sample")
	}
	src.mu.Lock()
	src.frozen = true
	src.mu.Unlock()

	if _, ok := p.sample(); ok {
		t.Error("a frame already sampled should not produce another sample")
	}
	if det.Calls() != 1 {
		t.Errorf("detector calls = %d, want 1", det.Calls())
	}
}

func TestPoller_ErrorProducesNoSample(t *testing.T) {
	skipWithoutGoCV(t)

	det := NewMockDetector()
	det.SetError(errors.New("model crashed"))
	p := NewPoller(&fakeSource{}, det, nil, func(bool) {})

	for i := 0; i < 3; i++ {
		if _, ok := p.sample(); ok {
			t.Fatal("detector error should not produce a sample")
		}
	}
	if p.failures != 3 {
		t.Errorf("failures = %d, want 3", p.failures)
	}

	det.SetError(nil)
	if _, ok := p.sample(); !ok {
		t.Error("sample should resume after the detector recovers")
	}
	if p.failures != 0 {
		t.Errorf("failures = %d, want 0 after recovery", p.failures)
	}
}

func TestPoller_NoFrameYet(t *testing.T) {
	p := NewPoller(&fakeSource{empty: true}, NewMockDetector(), nil, func(bool) {})
	if _, ok := p.sample(); ok {
		t.Error("no frame should produce no sample")
	}
}

func TestPoller_StartStop(t *testing.T) {
	skipWithoutGoCV(t)

	det := NewMockDetector()
	det.SetPresent(true)
	log := &sampleLog{}
	p := NewPoller(&fakeSource{}, det, nil, log.add)

	p.Start()
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for log.len() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("got %d samples within 2s, want at least 3", log.len())
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.Stop()
	n := log.len()
	time.Sleep(200 * time.Millisecond)
	if log.len() != n {
		t.Errorf("samples delivered after Stop: %d -> %d", n, log.len())
	}
	p.Stop()
}
