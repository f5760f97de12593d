package engine

import (
	"github.com/rhasspy/wyoming-porcupine1/internal/keywords"
)

// Engine is one initialized wake word detection engine instance bound to a
// single keyword at a single sensitivity. Process expects exactly
// FrameLength() mono 16-bit samples at SampleRate() Hz per call.
type Engine interface {
	// FrameLength returns the number of samples required per Process call
	FrameLength() int

	// SampleRate returns the required input sample rate in Hz
	SampleRate() int

	// Process runs detection on one frame and reports whether the
	// keyword matched
	Process(frame []int16) (bool, error)

	// Close releases engine resources
	Close() error
}

// Config carries the parameters needed to construct engine instances
type Config struct {
	AccessKey string            // Engine access credentials
	Catalog   *keywords.Catalog // Discovered keywords and library paths
}

// Factory constructs an engine for a keyword at a sensitivity in [0,1]
type Factory func(cfg Config, keyword keywords.Keyword, sensitivity float32) (Engine, error)
