// Package codec implements the uniform encode/decode contract of §4.A
// over two concrete codecs (Opus, MP3), grounded on the framing and
// buffer-pool idioms of alxayo-rtmp-go's internal/rtmp/media package.
package codec

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBitrate      = errors.New("bitrate out of range for codec")
	ErrInvalidSampleRate   = errors.New("unsupported sample rate")
	ErrInvalidChannelCount = errors.New("unsupported channel count")
	ErrParameterMismatch   = errors.New("samples do not match declared format")
	ErrSeekDisabled        = errors.New("seeking is disabled for this stream")
)

// ErrorTolerance controls how Decode reacts to malformed input.
type ErrorTolerance int

const (
	ErrorStrict ErrorTolerance = iota
	ErrorTolerant
	ErrorPermissive
)

type Format struct {
	Codec      string
	Version    string
	Bitrate    int
	SampleRate int
	Channels   int
	BitDepth   int
	FrameSize  int
	LatencyMs  float64
	Quality    string
}

type DecodedAudio struct {
	Samples    []float32
	SampleRate int
	Channels   int
	DurationMs float64
	Format     Format
}

// Codec is the uniform contract every concrete implementation
// satisfies, per §4.A.
type Codec interface {
	Encode(samples []float32, sampleRate, channels int) ([]byte, error)
	Finalize() ([]byte, error)
	Decode(data []byte) (DecodedAudio, error)
	Reset()
	SetBitrate(bitrate int) error
	Info() Format
}

func parameterMismatchf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParameterMismatch, fmt.Sprintf(format, args...))
}
