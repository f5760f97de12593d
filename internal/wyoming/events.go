package wyoming

import (
	"encoding/json"
	"fmt"
)

// Attribution identifies the author of a wake word program or model
type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// WakeModel describes one installed wake word model
type WakeModel struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Languages   []string    `json:"languages"`
	Version     string      `json:"version"`
}

// WakeProgram describes a wake word detection service and its models
type WakeProgram struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version"`
	Models      []WakeModel `json:"models"`
}

// Info is the capabilities report sent in response to a describe event
type Info struct {
	Wake []WakeProgram `json:"wake"`
}

// Detect requests detection of specific wake words (first usable name wins)
type Detect struct {
	Names []string `json:"names,omitempty"`
}

// AudioStart marks the beginning of an audio stream
type AudioStart struct {
	Rate      int   `json:"rate"`
	Width     int   `json:"width"`
	Channels  int   `json:"channels"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// AudioChunk carries the format of one chunk of audio; the PCM bytes
// travel in the event payload, not in the JSON header.
type AudioChunk struct {
	Rate      int   `json:"rate"`
	Width     int   `json:"width"`
	Channels  int   `json:"channels"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// AudioStop marks the end of an audio stream
type AudioStop struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Detection reports a matched wake word
type Detection struct {
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NotDetected reports that an audio stream ended without any match
type NotDetected struct{}

// DescribeEvent builds a describe event
func DescribeEvent() *Event {
	return &Event{Type: TypeDescribe}
}

// Event converts the capabilities report into a wire event
func (i *Info) Event() (*Event, error) {
	return marshalEvent(TypeInfo, i)
}

// Event converts the detect request into a wire event
func (d *Detect) Event() (*Event, error) {
	return marshalEvent(TypeDetect, d)
}

// Event converts the audio start marker into a wire event
func (a *AudioStart) Event() (*Event, error) {
	return marshalEvent(TypeAudioStart, a)
}

// Event converts the chunk format plus PCM bytes into a wire event
func (a *AudioChunk) Event(pcm []byte) (*Event, error) {
	event, err := marshalEvent(TypeAudioChunk, a)
	if err != nil {
		return nil, err
	}
	event.Payload = pcm
	return event, nil
}

// Event converts the audio stop marker into a wire event
func (a *AudioStop) Event() (*Event, error) {
	return marshalEvent(TypeAudioStop, a)
}

// Event converts the detection report into a wire event
func (d *Detection) Event() (*Event, error) {
	return marshalEvent(TypeDetection, d)
}

// Event converts the not-detected report into a wire event
func (n *NotDetected) Event() (*Event, error) {
	return &Event{Type: TypeNotDetected}, nil
}

// DetectFromEvent parses a detect event's data
func DetectFromEvent(event *Event) (*Detect, error) {
	detect := &Detect{}
	if err := unmarshalEvent(event, TypeDetect, detect); err != nil {
		return nil, err
	}
	return detect, nil
}

// AudioStartFromEvent parses an audio-start event's data
func AudioStartFromEvent(event *Event) (*AudioStart, error) {
	start := &AudioStart{}
	if err := unmarshalEvent(event, TypeAudioStart, start); err != nil {
		return nil, err
	}
	return start, nil
}

// AudioChunkFromEvent parses an audio-chunk event's data; the PCM bytes
// remain in event.Payload.
func AudioChunkFromEvent(event *Event) (*AudioChunk, error) {
	chunk := &AudioChunk{}
	if err := unmarshalEvent(event, TypeAudioChunk, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// InfoFromEvent parses an info event's data
func InfoFromEvent(event *Event) (*Info, error) {
	info := &Info{}
	if err := unmarshalEvent(event, TypeInfo, info); err != nil {
		return nil, err
	}
	return info, nil
}

// DetectionFromEvent parses a detection event's data
func DetectionFromEvent(event *Event) (*Detection, error) {
	detection := &Detection{}
	if err := unmarshalEvent(event, TypeDetection, detection); err != nil {
		return nil, err
	}
	return detection, nil
}

// marshalEvent encodes a typed event body into the generic wire form
func marshalEvent(eventType string, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", eventType, err)
	}
	return &Event{Type: eventType, Data: raw}, nil
}

// unmarshalEvent decodes the generic wire form into a typed event body
func unmarshalEvent(event *Event, wantType string, dst interface{}) error {
	if event.Type != wantType {
		return fmt.Errorf("expected %s event, got %s", wantType, event.Type)
	}
	if len(event.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Data, dst); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", wantType, err)
	}
	return nil
}
