package audio

import (
	"encoding/binary"
	"fmt"
)

// Format describes raw PCM audio: sample rate in Hz, sample width in
// bytes and channel count.
type Format struct {
	Rate     int
	Width    int
	Channels int
}

// Validate checks that the format is one the converter can handle
func (f Format) Validate() error {
	if f.Rate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.Rate)
	}
	if f.Width != 1 && f.Width != 2 && f.Width != 4 {
		return fmt.Errorf("sample width must be 1, 2 or 4 bytes, got %d", f.Width)
	}
	if f.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", f.Channels)
	}
	return nil
}

// Converter normalizes inbound PCM chunks to mono 16-bit little-endian
// samples at a target rate before they reach the reframer. Conversion is
// stateless per chunk: width conversion first, then channel mixdown by
// averaging, then nearest-sample rate conversion.
type Converter struct {
	target Format
}

// NewConverter creates a converter targeting mono 16-bit audio at rate Hz
func NewConverter(rate int) *Converter {
	return &Converter{
		target: Format{Rate: rate, Width: 2, Channels: 1},
	}
}

// Convert normalizes one chunk from the source format to the target
// format. Chunks already in the target format are returned unchanged.
func (c *Converter) Convert(data []byte, src Format) ([]byte, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source format: %w", err)
	}

	frameBytes := src.Width * src.Channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("chunk length %d not aligned to %d-byte sample frames", len(data), frameBytes)
	}

	if src == c.target {
		return data, nil
	}

	sampleCount := len(data) / frameBytes

	// Decode to mono 16-bit samples
	samples := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		var sum int64
		for ch := 0; ch < src.Channels; ch++ {
			offset := i*frameBytes + ch*src.Width
			sum += int64(decodeSample(data[offset:], src.Width))
		}
		samples[i] = int16(sum / int64(src.Channels))
	}

	// Rate conversion by nearest-sample lookup
	if src.Rate != c.target.Rate {
		outCount := sampleCount * c.target.Rate / src.Rate
		resampled := make([]int16, outCount)
		for i := 0; i < outCount; i++ {
			srcIndex := i * src.Rate / c.target.Rate
			if srcIndex >= sampleCount {
				srcIndex = sampleCount - 1
			}
			resampled[i] = samples[srcIndex]
		}
		samples = resampled
	}

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}

	return out, nil
}

// decodeSample reads one sample of the given width and scales it to the
// 16-bit range. 8-bit PCM is unsigned per WAV convention.
func decodeSample(data []byte, width int) int16 {
	switch width {
	case 1:
		return int16(int(data[0])-128) << 8
	case 4:
		v := int32(binary.LittleEndian.Uint32(data))
		return int16(v >> 16)
	default:
		return int16(binary.LittleEndian.Uint16(data))
	}
}
