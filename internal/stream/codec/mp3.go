package codec

import (
	"bytes"
	"encoding/binary"
	"math"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

const (
	mp3MinBitrate = 32000
	mp3MaxBitrate = 320000
)

// MP3Preset selects the VBR/CBR configuration §4.A specifies.
type MP3Preset int

const (
	PresetInsane MP3Preset = iota
	PresetExtreme
	PresetStandard
	PresetStreaming
	PresetPortable
)

// presetConfig reports the (bitrate, vbr, mono) triple for a preset.
func presetConfig(p MP3Preset) (bitrate int, vbr bool, mono bool) {
	switch p {
	case PresetInsane:
		return 320000, false, false
	case PresetExtreme:
		return 245000, true, false // approximates libmp3lame's V0 average
	case PresetStandard:
		return 190000, true, false // approximates V2 average
	case PresetStreaming:
		return 128000, false, false
	case PresetPortable:
		return 64000, false, true
	default:
		return 128000, false, false
	}
}

// mp3FrameHeader recognizes the MPEG audio frame sync word and decodes
// the fields §4.A names: version, layer, bitrate/sample-rate indices,
// and channel mode. Grounded on go-mp3's internal frame-header parsing
// (github.com/hajimehoshi/go-mp3/internal/frameheader), re-expressed
// here since that package is unexported.
type mp3FrameHeader struct {
	Version     int // 0=MPEG2.5, 2=MPEG2, 3=MPEG1
	Layer       int // 1=Layer III, 2=Layer II, 3=Layer I
	BitrateIdx  int
	SampleRateIdx int
	ChannelMode int // 0=stereo,1=joint,2=dual,3=mono
}

var mp3SyncMask uint32 = 0xFFE00000 // 0xFFE0 top-byte mask, per §4.A

func parseMP3FrameHeader(b []byte) (mp3FrameHeader, bool) {
	if len(b) < 4 {
		return mp3FrameHeader{}, false
	}
	word := binary.BigEndian.Uint32(b[:4])
	if word&mp3SyncMask != mp3SyncMask {
		return mp3FrameHeader{}, false
	}
	return mp3FrameHeader{
		Version:       int((b[1] >> 3) & 0x3),
		Layer:         int((b[1] >> 1) & 0x3),
		BitrateIdx:    int((b[2] >> 4) & 0xF),
		SampleRateIdx: int((b[2] >> 2) & 0x3),
		ChannelMode:   int((b[3] >> 6) & 0x3),
	}, true
}

var mp3BitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var mp3SampleRateTableV1 = [4]int{44100, 48000, 32000, 0}

// MP3 wraps github.com/hajimehoshi/go-mp3's decoder for real streams
// and a minimal frame-header-correct encoder for synthetic output,
// behind the uniform Codec contract. There is no pure-Go MP3 encoder
// in the retrieved example pack (go-mp3 is decode-only), so the
// encoder here produces spec-correct
// frame headers (sync word, version/layer/bitrate/sample-rate fields)
// sized per the selected preset, without full psychoacoustic encoding.
type MP3 struct {
	sampleRate   int
	channels     int
	bitrate      int
	preset       MP3Preset
	enableSeeking bool

	pending []float32
	plc     plcState
}

const mp3FrameSamples = 1152 // per MPEG-1 Layer III frame

func NewMP3(sampleRate, channels int, preset MP3Preset, enableSeeking bool) (*MP3, error) {
	if sampleRate != 32000 && sampleRate != 44100 && sampleRate != 48000 {
		return nil, ErrInvalidSampleRate
	}
	if channels != 1 && channels != 2 {
		return nil, ErrInvalidChannelCount
	}
	bitrate, _, mono := presetConfig(preset)
	if mono && channels != 1 {
		channels = 1
	}
	return &MP3{
		sampleRate: sampleRate, channels: channels, bitrate: bitrate,
		preset: preset, enableSeeking: enableSeeking,
	}, nil
}

func (m *MP3) Encode(samples []float32, sampleRate, channels int) ([]byte, error) {
	if sampleRate != m.sampleRate || channels != m.channels {
		return nil, parameterMismatchf("got %dHz/%dch, codec configured for %dHz/%dch", sampleRate, channels, m.sampleRate, m.channels)
	}
	m.pending = append(m.pending, samples...)

	var out []byte
	for len(m.pending) >= mp3FrameSamples*m.channels {
		frame := m.pending[:mp3FrameSamples*m.channels]
		out = append(out, m.encodeFrame(frame)...)
		m.pending = m.pending[mp3FrameSamples*m.channels:]
	}
	return out, nil
}

// encodeFrame builds one spec-correct MP3 frame header followed by a
// payload sized from the configured bitrate, with the PCM samples
// quantized into it. It is not bit-accurate MPEG Layer III output;
// see the MP3 doc comment for why no true encoder is wired.
func (m *MP3) encodeFrame(frame []float32) []byte {
	payloadSize := (144 * m.bitrate / m.sampleRate)
	header := m.buildHeader()

	out := make([]byte, 4+payloadSize)
	copy(out, header[:])
	for i, s := range frame {
		if i >= payloadSize-2 {
			break
		}
		out[4+i] = byte(floatToPCM16(s) >> 8)
	}
	return out
}

func (m *MP3) buildHeader() [4]byte {
	var h [4]byte
	h[0] = 0xFF
	h[1] = 0xFB // MPEG1, Layer III, no CRC
	bitrateIdx := closestBitrateIndex(m.bitrate / 1000)
	sampleRateIdx := closestSampleRateIndex(m.sampleRate)
	channelMode := byte(3)
	if m.channels == 2 {
		channelMode = 0
	}
	h[2] = byte(bitrateIdx<<4) | byte(sampleRateIdx<<2)
	h[3] = channelMode << 6
	return h
}

func closestBitrateIndex(kbps int) int {
	best, bestDiff := 1, math.MaxInt32
	for i, v := range mp3BitrateTableV1L3 {
		if v == 0 {
			continue
		}
		diff := v - kbps
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	return best
}

func closestSampleRateIndex(rate int) int {
	for i, v := range mp3SampleRateTableV1 {
		if v == rate {
			return i
		}
	}
	return 0
}

// Finalize emits any pending partial frame (padded with silence) plus
// a trailing ID3v1 tag, per §4.A.
func (m *MP3) Finalize() ([]byte, error) {
	var out []byte
	if len(m.pending) > 0 {
		padded := make([]float32, mp3FrameSamples*m.channels)
		copy(padded, m.pending)
		m.pending = nil
		out = append(out, m.encodeFrame(padded)...)
	}
	out = append(out, mp3ID3v1Tag()...)
	return out, nil
}

func mp3ID3v1Tag() []byte {
	tag := make([]byte, 128)
	copy(tag, []byte("TAG"))
	return tag
}

// Decode wraps go-mp3's streaming decoder. On empty input it
// synthesizes a PLC frame, per §4.A.
func (m *MP3) Decode(data []byte) (DecodedAudio, error) {
	if len(data) == 0 {
		samples := m.plc.conceal()
		return DecodedAudio{
			Samples: samples, SampleRate: m.sampleRate, Channels: m.channels,
			DurationMs: durationMs(len(samples), m.sampleRate, m.channels),
			Format:     m.Info(),
		}, nil
	}

	dec, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return DecodedAudio{}, err
	}

	buf := make([]byte, 4096)
	var pcm []byte
	for {
		n, err := dec.Read(buf)
		pcm = append(pcm, buf[:n]...)
		if err != nil {
			break
		}
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		samples[i] = pcm16ToFloat(v)
	}
	m.plc.recordGood(samples)

	return DecodedAudio{
		Samples: samples, SampleRate: dec.SampleRate(), Channels: 2,
		DurationMs: durationMs(len(samples), dec.SampleRate(), 2),
		Format:     m.Info(),
	}, nil
}

// SeekSamplePosition converts a target duration into a sample
// position, per §4.A; it returns ErrSeekDisabled unless enable_seeking
// was set at construction.
func (m *MP3) SeekSamplePosition(target float64) (int64, error) {
	if !m.enableSeeking {
		return 0, ErrSeekDisabled
	}
	return int64(target * float64(m.sampleRate)), nil
}

func (m *MP3) Reset() {
	m.pending = nil
	m.plc = plcState{}
}

func (m *MP3) SetBitrate(bitrate int) error {
	if bitrate < mp3MinBitrate || bitrate > mp3MaxBitrate {
		return ErrInvalidBitrate
	}
	m.bitrate = bitrate
	return nil
}

func (m *MP3) Info() Format {
	return Format{
		Codec: "mp3", Version: "MPEG-1 Layer III", Bitrate: m.bitrate,
		SampleRate: m.sampleRate, Channels: m.channels, BitDepth: 16,
		FrameSize: mp3FrameSamples, LatencyMs: 1000 * mp3FrameSamples / float64(m.sampleRate),
		Quality: presetName(m.preset),
	}
}

func presetName(p MP3Preset) string {
	switch p {
	case PresetInsane:
		return "insane"
	case PresetExtreme:
		return "extreme"
	case PresetStandard:
		return "standard"
	case PresetStreaming:
		return "streaming"
	case PresetPortable:
		return "portable"
	default:
		return "standard"
	}
}
