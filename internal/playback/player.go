// Package playback plays synthesized speech on the default audio output.
package playback

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// FramesPerBuffer is the portaudio write size.
const FramesPerBuffer = 1024

// Player plays one audio clip to completion or until ctx is done.
type Player interface {
	Play(ctx context.Context, audio []byte) error
	Close() error
}

// NopPlayer discards audio. It is used in headless runs.
type NopPlayer struct{}

func (NopPlayer) Play(ctx context.Context, audio []byte) error { return nil }
func (NopPlayer) Close() error                                 { return nil }

// PortAudioPlayer writes PCM16 WAV audio to the default output device.
// Calls to Play are serialized.
type PortAudioPlayer struct {
	mu sync.Mutex
}

// NewPortAudioPlayer initializes portaudio.
func NewPortAudioPlayer() (*PortAudioPlayer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	return &PortAudioPlayer{}, nil
}

// Play decodes audio and blocks until it has been written out.
func (p *PortAudioPlayer) Play(ctx context.Context, audio []byte) error {
	pcm, err := DecodeWAV(audio)
	if err != nil {
		return err
	}
	channels := pcm.Format.NumChannels

	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]int16, FramesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(pcm.Format.SampleRate), FramesPerBuffer, buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	log.Printf("Playing %.1fs of speech", Duration(pcm))

	for pos := 0; pos < len(pcm.Data); pos += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := fill(buf, pcm.Data[pos:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}
	return nil
}

// fill copies 16-bit samples into the output buffer.
func fill(dst []int16, src []int) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = int16(src[i])
	}
	return n
}

// Close releases portaudio.
func (p *PortAudioPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return portaudio.Terminate()
}
