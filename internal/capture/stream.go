package capture

import (
	"errors"
	"image"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// subscriberBuffer is the per-subscriber frame queue. Frames are dropped
// when a subscriber falls this far behind.
const subscriberBuffer = 8

// ErrStreamClosed is returned when opening a stream that has been closed.
var ErrStreamClosed = errors.New("stream closed")

// Stream owns the camera for the whole session. A single reader goroutine
// pulls frames at the camera rate; the preview, the hand detector, and the
// clip recorder all read from it without ever closing the device.
type Stream struct {
	cam Camera

	mu      sync.Mutex
	latest  *gocv.Mat
	seq     uint64
	subs    map[int]chan *gocv.Mat
	nextID  int
	running bool
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewStream wraps cam. The camera is not opened until Open.
func NewStream(cam Camera) *Stream {
	return &Stream{
		cam:  cam,
		subs: make(map[int]chan *gocv.Mat),
	}
}

// Open opens the camera and starts the reader. It is safe to call again
// after a failure; a running stream is left as is.
func (s *Stream) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if s.running {
		return nil
	}
	if err := s.cam.Open(); err != nil {
		return err
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.readLoop(s.stopCh, s.doneCh)

	log.Printf("Camera stream opened (%dx%d @ %d fps)", s.cam.Size().X, s.cam.Size().Y, s.cam.FPS())
	return nil
}

// Close stops the reader, releases the camera, and closes every subscription.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.running
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	if running {
		close(stopCh)
		<-doneCh
	}

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		closeQueue(ch)
	}
	if s.latest != nil {
		s.latest.Close()
		s.latest = nil
	}
	s.mu.Unlock()

	return s.cam.Close()
}

// IsOpen reports whether the reader is running.
func (s *Stream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Latest returns a copy of the most recent frame and its sequence number.
// The caller must close the returned Mat.
func (s *Stream) Latest() (*gocv.Mat, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil || s.latest.Empty() {
		return nil, 0, false
	}
	frame := s.latest.Clone()
	return &frame, s.seq, true
}

// Subscribe returns a channel receiving a copy of every frame read after the
// call, in order. The receiver owns and must close each Mat. The returned
// func unsubscribes and closes the channel; frames already queued stay in it
// and the receiver must drain them.
func (s *Stream) Subscribe() (<-chan *gocv.Mat, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *gocv.Mat, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if q, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(q)
			}
		})
	}
}

// Size returns the frame size.
func (s *Stream) Size() image.Point { return s.cam.Size() }

// FPS returns the read rate.
func (s *Stream) FPS() int { return s.cam.FPS() }

func (s *Stream) readLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	fps := s.cam.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := s.cam.ReadFrame()
			if err != nil {
				// One line per burst of failures.
				if failures == 0 {
					log.Printf("Error reading frame: %v", err)
				}
				failures++
				continue
			}
			if failures > 0 {
				log.Printf("Camera recovered after %d failed reads", failures)
				failures = 0
			}
			s.publish(frame)
		}
	}
}

// publish stores frame as the latest and fans copies out to subscribers.
// A subscriber whose queue is full misses the frame.
func (s *Stream) publish(frame *gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		c := frame.Clone()
		select {
		case ch <- &c:
		default:
			c.Close()
		}
	}

	if s.latest != nil {
		s.latest.Close()
	}
	s.latest = frame
	s.seq++
}

// closeQueue closes ch and releases any frames still queued in it.
func closeQueue(ch chan *gocv.Mat) {
	close(ch)
	for m := range ch {
		m.Close()
	}
}
