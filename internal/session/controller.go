package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhasspy/wyoming-porcupine1/internal/audio"
	"github.com/rhasspy/wyoming-porcupine1/internal/detector"
	"github.com/rhasspy/wyoming-porcupine1/internal/metrics"
	"github.com/rhasspy/wyoming-porcupine1/internal/wyoming"
)

// Session states
const (
	StateIdle      = "idle"      // No keyword selected, no audio in progress
	StateSelected  = "selected"  // Adapter checked out, no audio in progress
	StateStreaming = "streaming" // Adapter checked out, detection active
)

// State machine transitions
const (
	transitionSelect = "select"
	transitionStart  = "start"
	transitionStop   = "stop"
)

// EventWriter sends protocol events back to the client
type EventWriter interface {
	WriteEvent(event *wyoming.Event) error
}

// Config carries the shared collaborators every session needs
type Config struct {
	Pool           *detector.Pool
	InfoEvent      *wyoming.Event // Prebuilt capabilities report
	DefaultKeyword string
	Sensitivity    float32
	CaptureDir     string           // When set, each utterance is saved as a WAV file
	Metrics        *metrics.Metrics // Optional; a throwaway registry is used when nil
	Logger         *slog.Logger
}

// Controller is the per-connection protocol state machine. It owns one
// reframer and holds at most one checked-out adapter at a time. Events
// are handled strictly one at a time by the connection's goroutine.
type Controller struct {
	id        string
	cfg       Config
	logger    *slog.Logger
	writer    EventWriter
	machine   *fsm.FSM
	startTime time.Time

	// Guards adapter/detected for the monitoring endpoint; the event
	// handling path itself is single-goroutine.
	mu       sync.Mutex
	adapter  *detector.Adapter
	reframer *audio.Reframer
	conv     *audio.Converter
	capture  []byte // Converted PCM of the current utterance, when capturing
	detected bool
	closed   bool
}

// Info is a read-only session snapshot for monitoring
type Info struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Keyword   string    `json:"keyword,omitempty"`
	StartTime time.Time `json:"start_time"`
	Detected  bool      `json:"detected_this_utterance"`
}

// New creates a controller for one client connection. The session ID is
// derived from a monotonic clock and unique for the process lifetime.
func New(cfg Config, writer EventWriter) *Controller {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}

	id := strconv.FormatInt(time.Now().UnixNano(), 10)
	logger := cfg.Logger.With(slog.String("client_id", id))

	c := &Controller{
		id:        id,
		cfg:       cfg,
		logger:    logger,
		writer:    writer,
		startTime: time.Now(),
	}

	c.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: transitionSelect, Src: []string{StateIdle, StateSelected, StateStreaming}, Dst: StateSelected},
			{Name: transitionStart, Src: []string{StateIdle, StateSelected, StateStreaming}, Dst: StateStreaming},
			{Name: transitionStop, Src: []string{StateSelected, StateStreaming}, Dst: StateSelected},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logger.Debug("Session state changed",
					slog.String("from", e.Src),
					slog.String("to", e.Dst),
				)
			},
		},
	)

	cfg.Metrics.RecordSessionStarted()
	logger.Debug("Client connected")

	return c
}

// ID returns the session identifier
func (c *Controller) ID() string {
	return c.id
}

// Info returns a snapshot of the session for monitoring
func (c *Controller) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := Info{
		ID:        c.id,
		State:     c.machine.Current(),
		StartTime: c.startTime,
		Detected:  c.detected,
	}
	if c.adapter != nil {
		info.Keyword = c.adapter.Keyword()
	}
	return info
}

// HandleEvent processes one inbound protocol event. A returned error is
// session-fatal: the caller must stop reading and close the connection.
// Unexpected or malformed events are logged and ignored.
func (c *Controller) HandleEvent(event *wyoming.Event) error {
	c.cfg.Metrics.RecordEvent(event.Type)

	switch event.Type {
	case wyoming.TypeDescribe:
		if err := c.writer.WriteEvent(c.cfg.InfoEvent); err != nil {
			return fmt.Errorf("failed to send info: %w", err)
		}
		c.logger.Debug("Sent info to client")
		return nil

	case wyoming.TypeDetect:
		detect, err := wyoming.DetectFromEvent(event)
		if err != nil {
			c.protocolViolation(event, err)
			return nil
		}
		if len(detect.Names) == 0 {
			return nil
		}
		return c.selectKeyword(detect.Names)

	case wyoming.TypeAudioStart:
		c.beginUtterance()
		return nil

	case wyoming.TypeAudioChunk:
		chunk, err := wyoming.AudioChunkFromEvent(event)
		if err != nil {
			c.protocolViolation(event, err)
			return nil
		}
		return c.handleChunk(chunk, event.Payload)

	case wyoming.TypeAudioStop:
		return c.finishUtterance()

	default:
		c.protocolViolation(event, nil)
		return nil
	}
}

// Close unwinds the session: the held adapter (if any) is returned to
// the pool and the reframing buffer is discarded. Safe to call once.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.adapter != nil {
		c.cfg.Pool.Checkin(c.adapter)
		c.adapter = nil
	}
	c.reframer = nil

	c.cfg.Metrics.RecordSessionEnded(time.Since(c.startTime).Seconds())
	c.logger.Debug("Client disconnected")
}

// selectKeyword checks out an adapter for the first usable name. Unknown
// names are skipped with a warning; an engine construction failure is
// session-fatal.
func (c *Controller) selectKeyword(names []string) error {
	for _, name := range names {
		c.mu.Lock()
		current := c.adapter
		c.mu.Unlock()

		// Already holding the right adapter
		if current != nil && current.Keyword() == name {
			c.transition(transitionSelect)
			return nil
		}

		adapter, err := c.cfg.Pool.Checkout(name, c.cfg.Sensitivity)
		if err != nil {
			var unknown *detector.UnknownKeywordError
			if errors.As(err, &unknown) {
				c.logger.Warn("Requested unknown keyword", slog.String("keyword", name))
				continue
			}
			return fmt.Errorf("keyword selection failed: %w", err)
		}

		c.mu.Lock()
		if current != nil {
			c.cfg.Pool.Checkin(current)
		}
		c.adapter = adapter
		c.reframer = audio.NewReframer(adapter.FrameSizeBytes())
		c.conv = audio.NewConverter(adapter.SampleRate())
		c.mu.Unlock()

		c.logger.Debug("Keyword selected",
			slog.String("keyword", name),
			slog.Float64("sensitivity", float64(adapter.Sensitivity())),
		)
		c.transition(transitionSelect)
		return nil
	}

	c.logger.Error("No usable keyword in selection", slog.Any("names", names))
	return nil
}

// beginUtterance starts a new utterance and resets per-utterance state
func (c *Controller) beginUtterance() {
	c.mu.Lock()
	c.detected = false
	c.capture = nil
	c.mu.Unlock()
	c.transition(transitionStart)
}

// handleChunk feeds one audio chunk through conversion, reframing and
// detection. Chunks arriving before audio-start implicitly begin the
// utterance; a session with no keyword selects the default implicitly.
func (c *Controller) handleChunk(chunk *wyoming.AudioChunk, pcm []byte) error {
	c.mu.Lock()
	adapter := c.adapter
	c.mu.Unlock()

	if adapter == nil {
		if err := c.selectKeyword([]string{c.cfg.DefaultKeyword}); err != nil {
			return err
		}
		c.mu.Lock()
		adapter = c.adapter
		c.mu.Unlock()
		if adapter == nil {
			return fmt.Errorf("default keyword %q is not available", c.cfg.DefaultKeyword)
		}
	}

	if c.machine.Current() != StateStreaming {
		c.beginUtterance()
	}

	converted, err := c.conv.Convert(pcm, audio.Format{
		Rate:     chunk.Rate,
		Width:    chunk.Width,
		Channels: chunk.Channels,
	})
	if err != nil {
		c.logger.Warn("Dropping malformed audio chunk", slog.String("error", err.Error()))
		c.cfg.Metrics.RecordProtocolError()
		return nil
	}

	if c.cfg.CaptureDir != "" {
		c.mu.Lock()
		c.capture = append(c.capture, converted...)
		c.mu.Unlock()
	}

	c.reframer.Push(converted)

	for _, frame := range c.reframer.Frames() {
		start := time.Now()
		matched, err := adapter.ProcessFrame(frame)
		c.cfg.Metrics.RecordFrame(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("frame processing failed for keyword %q: %w", adapter.Keyword(), err)
		}

		if !matched {
			continue
		}

		c.mu.Lock()
		c.detected = true
		c.mu.Unlock()

		c.cfg.Metrics.RecordDetection(adapter.Keyword())
		c.logger.Debug("Detected keyword", slog.String("keyword", adapter.Keyword()))

		detection := wyoming.Detection{Name: adapter.Keyword(), Timestamp: chunk.Timestamp}
		detectionEvent, err := detection.Event()
		if err != nil {
			return err
		}
		if err := c.writer.WriteEvent(detectionEvent); err != nil {
			return fmt.Errorf("failed to send detection: %w", err)
		}
	}

	return nil
}

// finishUtterance closes the current utterance. The adapter stays checked
// out so the next utterance on this session reuses it.
func (c *Controller) finishUtterance() error {
	c.mu.Lock()
	detected := c.detected
	capture := c.capture
	c.capture = nil
	var rate int
	if c.adapter != nil {
		rate = c.adapter.SampleRate()
	}
	if c.reframer != nil {
		c.reframer.Reset()
	}
	c.mu.Unlock()

	if c.cfg.CaptureDir != "" && len(capture) > 0 {
		c.saveCapture(capture, rate)
	}

	if !detected {
		c.cfg.Metrics.RecordNotDetected()
		c.logger.Debug("Audio stopped without detection")

		notDetected := wyoming.NotDetected{}
		event, err := notDetected.Event()
		if err != nil {
			return err
		}
		if err := c.writer.WriteEvent(event); err != nil {
			return fmt.Errorf("failed to send not-detected: %w", err)
		}
	}

	c.transition(transitionStop)
	return nil
}

// saveCapture writes one utterance of converted PCM to the capture
// directory as a WAV file
func (c *Controller) saveCapture(pcm []byte, rate int) {
	wav, err := audio.EncodeWAV(pcm, audio.Format{Rate: rate, Width: 2, Channels: 1})
	if err != nil {
		c.logger.Warn("Failed to encode capture", slog.String("error", err.Error()))
		return
	}

	path := filepath.Join(c.cfg.CaptureDir, fmt.Sprintf("%s-%d.wav", c.id, time.Now().UnixNano()))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		c.logger.Warn("Failed to save capture",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Debug("Saved utterance capture", slog.String("path", path))
}

// protocolViolation logs an unexpected or malformed event and keeps the
// session alive
func (c *Controller) protocolViolation(event *wyoming.Event, err error) {
	c.cfg.Metrics.RecordProtocolError()

	attrs := []any{slog.String("type", event.Type)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	c.logger.Debug("Unexpected event", attrs...)
}

// transition drives the state machine, tolerating self-transitions
func (c *Controller) transition(name string) {
	err := c.machine.Event(name)
	if err == nil {
		return
	}
	if _, ok := err.(fsm.NoTransitionError); ok {
		return
	}
	// Out-of-context event, e.g. stop before any selection. Log and
	// continue; per-event side effects already happened.
	c.logger.Debug("Ignoring out-of-context transition",
		slog.String("transition", name),
		slog.String("state", c.machine.Current()),
	)
}
