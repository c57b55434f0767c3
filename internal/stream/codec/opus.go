package codec

import (
	"math"

	"gopkg.in/hraban/opus.v2"
)

const (
	opusMinBitrate = 6000
	opusMaxBitrate = 512000
)

var validOpusSampleRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// LatencyMode selects the Opus frame duration, per §4.A.
type LatencyMode int

const (
	LatencyUltraLow LatencyMode = iota
	LatencyLow
	LatencyNormal
)

func frameDurationMs(mode LatencyMode) float64 {
	switch mode {
	case LatencyUltraLow:
		return 2.5
	case LatencyLow:
		return 5
	default:
		return 10
	}
}

func opusApplication(mode LatencyMode) opus.Application {
	switch mode {
	case LatencyUltraLow, LatencyLow:
		return opus.AppRestrictedLowdelay
	default:
		return opus.AppVoIP
	}
}

// SignalType is the auto-detected classification §4.A names alongside
// (but distinct from) the latency-derived application hint: it
// characterizes the audio itself (energy + zero-crossing rate) rather
// than the caller's latency preference.
type SignalType int

const (
	SignalUnknown SignalType = iota
	SignalVoice
	SignalMusic
)

func (t SignalType) String() string {
	switch t {
	case SignalVoice:
		return "voice"
	case SignalMusic:
		return "music"
	default:
		return "unknown"
	}
}

// classifySignal implements §4.A's auto signal-type detection: average
// absolute amplitude as an energy proxy, plus zero-crossing rate.
// Voice-like frames are sparse in energy but cross zero often
// (fricatives, sibilants); sustained tonal content typical of music
// has higher average energy relative to its zero-crossing rate.
func classifySignal(samples []float32) SignalType {
	if len(samples) == 0 {
		return SignalUnknown
	}
	var energy float64
	zeroCrossings := 0
	for i, s := range samples {
		energy += math.Abs(float64(s))
		if i > 0 && (samples[i-1] >= 0) != (s >= 0) {
			zeroCrossings++
		}
	}
	avgEnergy := energy / float64(len(samples))
	zcr := float64(zeroCrossings) / float64(len(samples))
	if zcr > 0.15 && avgEnergy < 0.25 {
		return SignalVoice
	}
	return SignalMusic
}

// Opus wraps gopkg.in/hraban/opus.v2's libopus bindings behind the
// uniform Codec contract.
type Opus struct {
	sampleRate int
	channels   int
	bitrate    int
	latency    LatencyMode

	encoder *opus.Encoder
	decoder *opus.Decoder

	pending []float32
	plc     plcState

	packetLoss float64    // fraction; no method sets it (AdaptBitrate takes packet loss as an argument)
	lastSignal SignalType // auto-detected by classifySignal on each encoded frame
}

func NewOpus(sampleRate, channels int, latency LatencyMode) (*Opus, error) {
	if !validOpusSampleRates[sampleRate] {
		return nil, ErrInvalidSampleRate
	}
	if channels != 1 && channels != 2 {
		return nil, ErrInvalidChannelCount
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opusApplication(latency))
	if err != nil {
		return nil, err
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}

	return &Opus{
		sampleRate: sampleRate,
		channels:   channels,
		bitrate:    64000,
		latency:    latency,
		encoder:    enc,
		decoder:    dec,
	}, nil
}

func (o *Opus) frameSamples() int {
	return int(float64(o.sampleRate) * frameDurationMs(o.latency) / 1000 * float64(o.channels))
}

func (o *Opus) Encode(samples []float32, sampleRate, channels int) ([]byte, error) {
	if sampleRate != o.sampleRate || channels != o.channels {
		return nil, parameterMismatchf("got %dHz/%dch, codec configured for %dHz/%dch", sampleRate, channels, o.sampleRate, o.channels)
	}

	o.pending = append(o.pending, samples...)

	frameSize := o.frameSamples()
	var out []byte
	for len(o.pending) >= frameSize {
		frame := o.pending[:frameSize]
		encoded, err := o.encodeFrame(frame)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
		o.pending = o.pending[frameSize:]
	}
	return out, nil
}

func (o *Opus) encodeFrame(frame []float32) ([]byte, error) {
	o.lastSignal = classifySignal(frame)
	pcm := make([]int16, len(frame))
	for i, s := range frame {
		pcm[i] = floatToPCM16(s)
	}
	buf := make([]byte, 4000)
	n, err := o.encoder.Encode(pcm, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Finalize pads any remaining partial frame with silence and emits it.
func (o *Opus) Finalize() ([]byte, error) {
	if len(o.pending) == 0 {
		return nil, nil
	}
	frameSize := o.frameSamples()
	padded := make([]float32, frameSize)
	copy(padded, o.pending)
	o.pending = nil
	return o.encodeFrame(padded)
}

func (o *Opus) Decode(data []byte) (DecodedAudio, error) {
	if len(data) == 0 {
		samples := o.plc.conceal()
		return DecodedAudio{
			Samples: samples, SampleRate: o.sampleRate, Channels: o.channels,
			DurationMs: durationMs(len(samples), o.sampleRate, o.channels),
			Format:     o.Info(),
		}, nil
	}

	frameSize := o.frameSamples() * 4 // generous upper bound for PCM capacity
	pcm := make([]int16, frameSize)
	n, err := o.decoder.Decode(data, pcm)
	if err != nil {
		return DecodedAudio{}, err
	}

	samples := make([]float32, n*o.channels)
	for i, v := range pcm[:n*o.channels] {
		samples[i] = pcm16ToFloat(v)
	}
	o.plc.recordGood(samples)

	return DecodedAudio{
		Samples: samples, SampleRate: o.sampleRate, Channels: o.channels,
		DurationMs: durationMs(len(samples), o.sampleRate, o.channels),
		Format:     o.Info(),
	}, nil
}

func (o *Opus) Reset() {
	o.pending = nil
	o.plc = plcState{}
}

func (o *Opus) SetBitrate(bitrate int) error {
	if bitrate < opusMinBitrate || bitrate > opusMaxBitrate {
		return ErrInvalidBitrate
	}
	if err := o.encoder.SetBitrate(bitrate); err != nil {
		return err
	}
	o.bitrate = bitrate
	return nil
}

// AdaptBitrate applies the §4.B adaptive bitrate rule:
// target = 0.8 * availableBandwidth * (1 - 2*packetLoss), moved toward
// current by adaptationRate per update.
func (o *Opus) AdaptBitrate(availableBandwidth int, packetLoss, adaptationRate float64) error {
	target := 0.8 * float64(availableBandwidth) * (1 - 2*packetLoss)
	if target < opusMinBitrate {
		target = opusMinBitrate
	}
	if target > opusMaxBitrate {
		target = opusMaxBitrate
	}
	next := float64(o.bitrate) + (target-float64(o.bitrate))*adaptationRate
	return o.SetBitrate(int(next))
}

func (o *Opus) Info() Format {
	return Format{
		Codec: "opus", Version: "RFC6716", Bitrate: o.bitrate,
		SampleRate: o.sampleRate, Channels: o.channels, BitDepth: 16,
		FrameSize: o.frameSamples(), LatencyMs: frameDurationMs(o.latency),
		Quality: o.lastSignal.String(),
	}
}

func floatToPCM16(s float32) int16 {
	v := s * 32767
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

func pcm16ToFloat(v int16) float32 { return float32(v) / 32768 }

func durationMs(sampleCount, sampleRate, channels int) float64 {
	if sampleRate == 0 || channels == 0 {
		return 0
	}
	return 1000 * float64(sampleCount) / float64(channels) / float64(sampleRate)
}
