package playback

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned for audio that is not 16-bit PCM WAV.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// wavFormatPCM is the plain integer PCM format tag. WAVE_FORMAT_EXTENSIBLE
// (0xFFFE) is refused because its sub-format may be float or wider samples.
const wavFormatPCM = 1

// DecodeWAV parses a RIFF/WAVE file holding 16-bit integer PCM.
func DecodeWAV(data []byte) (*audio.IntBuffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrUnsupportedFormat)
	}
	if d.WavAudioFormat != wavFormatPCM || d.BitDepth != 16 {
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedFormat, d.WavAudioFormat, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrUnsupportedFormat)
	}
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrUnsupportedFormat)
	}
	return buf, nil
}

// Duration returns the play length of buf in seconds.
func Duration(buf *audio.IntBuffer) float64 {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate == 0 {
		return 0
	}
	return float64(buf.NumFrames()) / float64(buf.Format.SampleRate)
}
