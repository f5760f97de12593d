package engine

import (
	"fmt"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/rhasspy/wyoming-porcupine1/internal/keywords"
)

// porcupineEngine wraps one Picovoice Porcupine instance
type porcupineEngine struct {
	handle      porcupine.Porcupine
	frameLength int
	sampleRate  int
}

// NewPorcupine constructs a Porcupine-backed engine for the given keyword.
// The engine library for the keyword's language must be present in the
// catalog's library paths.
func NewPorcupine(cfg Config, keyword keywords.Keyword, sensitivity float32) (Engine, error) {
	libPath, ok := cfg.Catalog.LibraryPath(keyword.Language)
	if !ok {
		return nil, fmt.Errorf("no engine library for language %q", keyword.Language)
	}

	handle := porcupine.Porcupine{
		AccessKey:     cfg.AccessKey,
		ModelPath:     libPath,
		KeywordPaths:  []string{keyword.ModelPath},
		Sensitivities: []float32{sensitivity},
	}

	if err := handle.Init(); err != nil {
		return nil, fmt.Errorf("porcupine init failed for keyword %q: %w", keyword.Name, err)
	}

	return &porcupineEngine{
		handle: handle,
		// Package-level values are populated by Init
		frameLength: porcupine.FrameLength,
		sampleRate:  porcupine.SampleRate,
	}, nil
}

// FrameLength returns the number of samples per Process call
func (e *porcupineEngine) FrameLength() int {
	return e.frameLength
}

// SampleRate returns the required input sample rate in Hz
func (e *porcupineEngine) SampleRate() int {
	return e.sampleRate
}

// Process runs one frame through the engine
func (e *porcupineEngine) Process(frame []int16) (bool, error) {
	keywordIndex, err := e.handle.Process(frame)
	if err != nil {
		return false, fmt.Errorf("porcupine process failed: %w", err)
	}
	return keywordIndex >= 0, nil
}

// Close releases the underlying engine
func (e *porcupineEngine) Close() error {
	return e.handle.Delete()
}
