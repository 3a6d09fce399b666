// Package recorder encodes frames from the shared camera stream into clips.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/clip"
)

var (
	// ErrNoSupportedCodec is returned when no configured codec can be opened.
	ErrNoSupportedCodec = errors.New("no supported video codec")
	// ErrAlreadyRecording is returned by Start while a session is open.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNoStream is returned when the camera stream is not running.
	ErrNoStream = errors.New("camera stream not available")
)

// Source is the live camera stream a session records from.
type Source interface {
	Subscribe() (<-chan *gocv.Mat, func())
	Size() image.Point
	FPS() int
	IsOpen() bool
}

// ClipRecorder records at most one session at a time. Stopping a session
// never closes the underlying stream.
type ClipRecorder struct {
	src    Source
	codecs []clip.Codec
	dir    string

	mu      sync.Mutex
	session *session
	last    clip.Clip
}

type session struct {
	path        string
	codec       clip.Codec
	writer      *gocv.VideoWriter
	size        image.Point
	fps         int
	frames      int
	started     time.Time
	unsubscribe func()
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// New creates a recorder writing temporary files under dir. Codecs are tried
// in order on every Start.
func New(src Source, codecs []clip.Codec, dir string) *ClipRecorder {
	if len(codecs) == 0 {
		codecs = clip.DefaultCodecs()
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &ClipRecorder{src: src, codecs: codecs, dir: dir}
}

// Start opens a session with the first codec the platform supports and
// begins collecting frames.
func (r *ClipRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return ErrAlreadyRecording
	}
	if r.src == nil || !r.src.IsOpen() {
		return ErrNoStream
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("create clip dir: %w", err)
	}

	size := r.src.Size()
	fps := r.src.FPS()
	if fps <= 0 {
		fps = 15
	}

	s, err := r.open(size, fps)
	if err != nil {
		return err
	}

	frames, unsubscribe := r.src.Subscribe()
	s.unsubscribe = unsubscribe
	r.session = s
	r.last = clip.Clip{}

	go s.run(frames)

	log.Printf("Recording started (%s, %dx%d @ %d fps)", s.codec, size.X, size.Y, fps)
	return nil
}

func (r *ClipRecorder) open(size image.Point, fps int) (*session, error) {
	base := "clip-" + uuid.NewString()
	for _, codec := range r.codecs {
		path := filepath.Join(r.dir, base+codec.Ext)
		writer, err := gocv.VideoWriterFile(path, codec.FourCC, float64(fps), size.X, size.Y, true)
		if err != nil || !writer.IsOpened() {
			if writer != nil {
				writer.Close()
			}
			os.Remove(path)
			continue
		}
		return &session{
			path:    path,
			codec:   codec,
			writer:  writer,
			size:    size,
			fps:     fps,
			started: time.Now(),
			stopCh:  make(chan struct{}),
			doneCh:  make(chan struct{}),
		}, nil
	}
	return nil, fmt.Errorf("%w: tried %v", ErrNoSupportedCodec, r.codecs)
}

// run writes frames in arrival order until stopped. On stop it unsubscribes
// first, so no later frame can arrive, then writes what was already queued.
func (s *session) run(frames <-chan *gocv.Mat) {
	defer close(s.doneCh)

	for {
		select {
		case m, ok := <-frames:
			if !ok {
				return
			}
			s.write(m)
		case <-s.stopCh:
			s.unsubscribe()
			for m := range frames {
				s.write(m)
			}
			return
		}
	}
}

func (s *session) write(m *gocv.Mat) {
	defer m.Close()

	if m.Empty() {
		return
	}
	if m.Cols() != s.size.X || m.Rows() != s.size.Y {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(*m, &resized, s.size, 0, 0, gocv.InterpolationLinear)
		if err := s.writer.Write(resized); err != nil {
			log.Printf("Error writing frame: %v", err)
			return
		}
	} else if err := s.writer.Write(*m); err != nil {
		log.Printf("Error writing frame: %v", err)
		return
	}
	s.frames++
}

// Stop finalizes the open session and returns its clip. Without an open
// session it returns an empty clip and does nothing else.
func (r *ClipRecorder) Stop(ctx context.Context) (clip.Clip, error) {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()

	if s == nil {
		return clip.Clip{}, nil
	}

	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-ctx.Done():
		go s.discard()
		return clip.Clip{}, fmt.Errorf("finalize clip: %w", ctx.Err())
	}

	c, err := s.finalize()
	if err != nil {
		return clip.Clip{}, err
	}

	r.mu.Lock()
	r.last = c
	r.mu.Unlock()

	log.Printf("Recording stopped (%d frames, %d bytes)", c.Frames, len(c.Data))
	return c, nil
}

func (s *session) finalize() (clip.Clip, error) {
	defer os.Remove(s.path)

	if err := s.writer.Close(); err != nil {
		return clip.Clip{}, fmt.Errorf("close writer: %w", err)
	}
	if s.frames == 0 {
		return clip.Clip{}, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return clip.Clip{}, fmt.Errorf("read clip: %w", err)
	}

	return clip.Clip{
		Data:     data,
		MimeType: s.codec.MimeType,
		Frames:   s.frames,
		Duration: time.Duration(s.frames) * time.Second / time.Duration(s.fps),
	}, nil
}

// discard waits for a timed-out session to drain and removes its file.
func (s *session) discard() {
	<-s.doneCh
	s.writer.Close()
	os.Remove(s.path)
}

// Recording reports whether a session is open.
func (r *ClipRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Last returns the clip from the most recent Stop until Clear.
func (r *ClipRecorder) Last() clip.Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Clear drops the held clip.
func (r *ClipRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = clip.Clip{}
}
