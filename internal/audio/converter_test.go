package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestConverterPassthrough(t *testing.T) {
	c := NewConverter(16000)
	input := pcm16(100, -200, 300)

	out, err := c.Convert(input, Format{Rate: 16000, Width: 2, Channels: 1})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Error("Matching format should pass through unchanged")
	}
}

func TestConverterPassthroughRejectsMisalignedChunk(t *testing.T) {
	c := NewConverter(16000)

	// A chunk already in the target format must still be sample-aligned;
	// letting an odd byte through would shift every later sample.
	_, err := c.Convert(make([]byte, 7), Format{Rate: 16000, Width: 2, Channels: 1})
	if err == nil {
		t.Error("Expected error for misaligned chunk in target format, got nil")
	}
}

func TestConverterStereoMixdown(t *testing.T) {
	c := NewConverter(16000)
	// Two stereo sample frames: (100, 300) and (-50, -150)
	input := pcm16(100, 300, -50, -150)

	out, err := c.Convert(input, Format{Rate: 16000, Width: 2, Channels: 2})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	want := pcm16(200, -100)
	if !bytes.Equal(out, want) {
		t.Errorf("Expected mixdown %v, got %v", want, out)
	}
}

func TestConverterWidthConversion(t *testing.T) {
	c := NewConverter(16000)

	// 8-bit unsigned: 128 is silence, 255 is near max
	out, err := c.Convert([]byte{128, 255}, Format{Rate: 16000, Width: 1, Channels: 1})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	samples := []int16{
		int16(binary.LittleEndian.Uint16(out[0:])),
		int16(binary.LittleEndian.Uint16(out[2:])),
	}
	if samples[0] != 0 {
		t.Errorf("8-bit silence should map to 0, got %d", samples[0])
	}
	if samples[1] != 127<<8 {
		t.Errorf("8-bit 255 should map to %d, got %d", 127<<8, samples[1])
	}
}

func TestConverterDownsample(t *testing.T) {
	c := NewConverter(8000)
	input := pcm16(1, 2, 3, 4)

	out, err := c.Convert(input, Format{Rate: 16000, Width: 2, Channels: 1})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	want := pcm16(1, 3)
	if !bytes.Equal(out, want) {
		t.Errorf("Expected downsample %v, got %v", want, out)
	}
}

func TestConverterUpsample(t *testing.T) {
	c := NewConverter(16000)
	input := pcm16(10, 20)

	out, err := c.Convert(input, Format{Rate: 8000, Width: 2, Channels: 1})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	want := pcm16(10, 10, 20, 20)
	if !bytes.Equal(out, want) {
		t.Errorf("Expected upsample %v, got %v", want, out)
	}
}

func TestConverterErrors(t *testing.T) {
	c := NewConverter(16000)

	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"misaligned chunk", []byte{1, 2, 3}, Format{Rate: 16000, Width: 2, Channels: 1}},
		{"zero rate", pcm16(1), Format{Rate: 0, Width: 2, Channels: 1}},
		{"bad width", pcm16(1), Format{Rate: 16000, Width: 3, Channels: 1}},
		{"zero channels", pcm16(1), Format{Rate: 16000, Width: 2, Channels: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Convert(tt.data, tt.format); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
