package detector

import (
	"log"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"gocv.io/x/gocv"
)

// DefaultMinScore is the handedness score a detection needs to count.
const DefaultMinScore = 0.5

// FrameSource supplies the most recent camera frame and its sequence number.
type FrameSource interface {
	Latest() (*gocv.Mat, uint64, bool)
}

// Poller samples the shared stream, runs the detector, and reports hand
// presence. Motion raises the sampling rate; detector errors are logged and
// produce no sample.
type Poller struct {
	src      FrameSource
	det      Detector
	activity *capture.Activity
	sink     func(present bool)
	minScore float64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	lastSeq  uint64
	failures int
}

// NewPoller creates a stopped poller. activity may be nil for a fixed
// active rate.
func NewPoller(src FrameSource, det Detector, activity *capture.Activity, sink func(present bool)) *Poller {
	if activity == nil {
		activity = capture.NewActivity(nil)
	}
	return &Poller{
		src:      src,
		det:      det,
		activity: activity,
		sink:     sink,
		minScore: DefaultMinScore,
	}
}

// Start begins sampling. Calling Start on a running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.run(p.stopCh, p.doneCh)
}

// Stop halts sampling and waits for the loop to exit. No sample is
// delivered after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (p *Poller) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	interval := p.activity.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			present, ok := p.sample()
			// Stop may have raced with a slow detector call.
			select {
			case <-stopCh:
				return
			default:
			}
			if ok {
				p.sink(present)
			}
			if next := p.activity.Interval(); next != interval {
				interval = next
				ticker.Reset(interval)
				if p.activity.Active() {
					log.Println("Hand detection switched to active rate")
				} else {
					log.Println("Hand detection switched to idle rate")
				}
			}
		}
	}
}

// sample runs one detection on a frame not seen before.
func (p *Poller) sample() (present bool, ok bool) {
	frame, seq, ok := p.src.Latest()
	if !ok {
		return false, false
	}
	defer frame.Close()

	if seq == p.lastSeq {
		return false, false
	}
	p.lastSeq = seq

	p.activity.Update(frame)

	hands, err := p.det.Detect(frame)
	if err != nil {
		if p.failures == 0 {
			log.Printf("Error detecting hands: %v", err)
		}
		p.failures++
		return false, false
	}
	if p.failures > 0 {
		log.Printf("Hand detection recovered after %d errors", p.failures)
		p.failures = 0
	}

	return Present(hands, p.minScore), true
}
