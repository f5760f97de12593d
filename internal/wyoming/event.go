package wyoming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Event type identifiers from the Wyoming protocol specification
const (
	TypeDescribe    = "describe"
	TypeInfo        = "info"
	TypeDetect      = "detect"
	TypeAudioStart  = "audio-start"
	TypeAudioChunk  = "audio-chunk"
	TypeAudioStop   = "audio-stop"
	TypeDetection   = "detection"
	TypeNotDetected = "not-detected"
)

// Maximum accepted payload size (1 MB) to guard against malformed headers
const maxPayloadLength = 1 << 20

// Event represents a single Wyoming protocol event: a JSON header line
// with a type tag and optional data object, optionally followed by a
// binary payload of exactly PayloadLength bytes.
type Event struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload []byte          `json:"-"`
}

// eventHeader is the wire representation of the JSON header line
type eventHeader struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	PayloadLength *int            `json:"payload_length,omitempty"`
}

// ReadEvent reads a single event from the reader.
// It returns io.EOF when the peer closed the connection cleanly.
func ReadEvent(r *bufio.Reader) (*Event, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			if len(line) == 0 {
				return nil, io.EOF
			}
			// A partial header line is a truncated stream, not a clean close
			return nil, fmt.Errorf("event header cut short after %d bytes: %w", len(line), io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("failed to read event header: %w", err)
	}

	var header eventHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return nil, fmt.Errorf("failed to parse event header: %w", err)
	}

	if header.Type == "" {
		return nil, fmt.Errorf("event header missing type")
	}

	event := &Event{
		Type: header.Type,
		Data: header.Data,
	}

	// Read binary payload if announced in the header
	if header.PayloadLength != nil && *header.PayloadLength > 0 {
		if *header.PayloadLength > maxPayloadLength {
			return nil, fmt.Errorf("payload length %d exceeds maximum %d", *header.PayloadLength, maxPayloadLength)
		}

		event.Payload = make([]byte, *header.PayloadLength)
		if _, err := io.ReadFull(r, event.Payload); err != nil {
			return nil, fmt.Errorf("failed to read event payload (%d bytes): %w", *header.PayloadLength, err)
		}
	}

	return event, nil
}

// WriteEvent writes a single event to the writer: the JSON header line
// followed by the binary payload (if any).
func WriteEvent(w io.Writer, event *Event) error {
	header := eventHeader{
		Type: event.Type,
		Data: event.Data,
	}

	if len(event.Payload) > 0 {
		length := len(event.Payload)
		header.PayloadLength = &length
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode event header: %w", err)
	}

	if _, err := w.Write(append(headerBytes, '\n')); err != nil {
		return fmt.Errorf("failed to write event header: %w", err)
	}

	if len(event.Payload) > 0 {
		if _, err := w.Write(event.Payload); err != nil {
			return fmt.Errorf("failed to write event payload: %w", err)
		}
	}

	return nil
}

// String returns a human-readable representation of the event
func (e *Event) String() string {
	return fmt.Sprintf("Event{Type:%s, DataLen:%d, PayloadLen:%d}", e.Type, len(e.Data), len(e.Payload))
}
