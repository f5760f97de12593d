package detector

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rhasspy/wyoming-porcupine1/internal/engine"
)

// Adapter is one initialized engine instance bound to a (keyword,
// sensitivity) pair. An adapter is owned either by exactly one session
// (between Checkout and Checkin) or by the pool's idle set, never both.
type Adapter struct {
	engine      engine.Engine
	keyword     string
	sensitivity float32
}

// Keyword returns the keyword name this adapter was constructed for
func (a *Adapter) Keyword() string {
	return a.keyword
}

// Sensitivity returns the sensitivity this adapter was constructed with
func (a *Adapter) Sensitivity() float32 {
	return a.sensitivity
}

// FrameLength returns the number of samples required per frame
func (a *Adapter) FrameLength() int {
	return a.engine.FrameLength()
}

// FrameSizeBytes returns the required frame size in bytes of 16-bit PCM
func (a *Adapter) FrameSizeBytes() int {
	return a.engine.FrameLength() * 2
}

// SampleRate returns the required input sample rate in Hz
func (a *Adapter) SampleRate() int {
	return a.engine.SampleRate()
}

// ProcessFrame runs one frame of little-endian 16-bit mono PCM through the
// engine. The frame must be exactly FrameSizeBytes long.
func (a *Adapter) ProcessFrame(frame []byte) (bool, error) {
	samples := make([]int16, len(frame)/2)
	for i := range samples {
		samples[i] = int16(frame[2*i]) | int16(frame[2*i+1])<<8
	}
	return a.engine.Process(samples)
}

// Close releases the underlying engine
func (a *Adapter) Close() error {
	return a.engine.Close()
}

// PoolMetrics receives pool cache outcomes (see internal/metrics)
type PoolMetrics interface {
	RecordCheckout(cacheHit bool)
	RecordEngineInitFailure()
}

// Pool caches idle adapters per keyword so that sessions can reuse
// expensive engine instances instead of constructing a new one per
// connection. Idle adapters are kept for the process lifetime; there is
// no eviction.
type Pool struct {
	cfg     engine.Config
	factory engine.Factory
	logger  *slog.Logger
	metrics PoolMetrics // may be nil

	mu   sync.Mutex
	idle map[string][]*Adapter // keyword name -> idle adapters (any sensitivity)

	constructions atomic.Uint64
	hits          atomic.Uint64
}

// NewPool creates an empty adapter pool backed by the given engine factory
func NewPool(cfg engine.Config, factory engine.Factory, logger *slog.Logger, metrics PoolMetrics) *Pool {
	return &Pool{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		metrics: metrics,
		idle:    make(map[string][]*Adapter),
	}
}

// Checkout returns an adapter for the (keyword, sensitivity) pair, reusing
// an idle one with exactly the requested sensitivity when available. The
// caller owns the adapter exclusively until Checkin.
func (p *Pool) Checkout(keywordName string, sensitivity float32) (*Adapter, error) {
	keyword, ok := p.cfg.Catalog.Get(keywordName)
	if !ok {
		return nil, &UnknownKeywordError{Name: keywordName}
	}

	p.mu.Lock()
	idle := p.idle[keywordName]
	for i, adapter := range idle {
		if adapter.sensitivity == sensitivity {
			p.idle[keywordName] = append(idle[:i], idle[i+1:]...)
			remaining := len(p.idle[keywordName])
			p.mu.Unlock()

			p.hits.Add(1)
			if p.metrics != nil {
				p.metrics.RecordCheckout(true)
			}
			p.logger.Debug("Using adapter from cache",
				slog.String("keyword", keywordName),
				slog.Int("idle_remaining", remaining),
			)
			return adapter, nil
		}
	}
	p.mu.Unlock()

	// Cache miss: construct outside the lock. Engine init is slow and must
	// not block concurrent checkouts; a racing construction for the same
	// key just yields one more adapter that is checked in later.
	p.logger.Debug("Loading engine",
		slog.String("keyword", keyword.Name),
		slog.String("language", keyword.Language),
		slog.Float64("sensitivity", float64(sensitivity)),
	)

	eng, err := p.factory(p.cfg, keyword, sensitivity)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordEngineInitFailure()
		}
		return nil, &EngineInitError{Name: keywordName, Sensitivity: sensitivity, Err: err}
	}

	p.constructions.Add(1)
	if p.metrics != nil {
		p.metrics.RecordCheckout(false)
	}

	return &Adapter{
		engine:      eng,
		keyword:     keywordName,
		sensitivity: sensitivity,
	}, nil
}

// Checkin returns an adapter to the idle set of its keyword. The caller
// must not use the adapter after checking it in.
func (p *Pool) Checkin(adapter *Adapter) {
	p.mu.Lock()
	p.idle[adapter.keyword] = append(p.idle[adapter.keyword], adapter)
	idleCount := len(p.idle[adapter.keyword])
	p.mu.Unlock()

	p.logger.Debug("Adapter returned to cache",
		slog.String("keyword", adapter.keyword),
		slog.Int("idle_count", idleCount),
	)
}

// Constructions returns the total number of engine constructions
func (p *Pool) Constructions() uint64 {
	return p.constructions.Load()
}

// Hits returns the total number of cache hits
func (p *Pool) Hits() uint64 {
	return p.hits.Load()
}

// IdleCount returns the number of idle adapters for a keyword
func (p *Pool) IdleCount(keywordName string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[keywordName])
}

// Close releases every idle adapter. Called once at process shutdown;
// adapters still checked out by live sessions are not touched.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for keyword, adapters := range p.idle {
		for _, adapter := range adapters {
			if err := adapter.Close(); err != nil {
				p.logger.Warn("Error closing adapter",
					slog.String("keyword", keyword),
					slog.String("error", err.Error()),
				)
			}
		}
		delete(p.idle, keyword)
	}
}
