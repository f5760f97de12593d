package audio

import (
	"bytes"
	"testing"
)

func TestWAVRoundtrip(t *testing.T) {
	data := pcm16(0, 1000, -1000, 32767, -32768)
	format := Format{Rate: 16000, Width: 2, Channels: 1}

	wav, err := EncodeWAV(data, format)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, decodedFormat, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if decodedFormat != format {
		t.Errorf("Expected format %+v, got %+v", format, decodedFormat)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("Decoded audio differs from input")
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	if _, err := EncodeWAV(nil, Format{Rate: 16000, Width: 2, Channels: 1}); err == nil {
		t.Error("Expected error for empty audio data")
	}
}

func TestDecodeWAVInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", make([]byte, 10)},
		{"not riff", append([]byte("JUNK"), make([]byte, 40)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
