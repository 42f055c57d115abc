// Package pipeline assembles the capture, verify and claim components from
// configuration and runs them end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/virasat/internal/cache"
	"github.com/ppiankov/virasat/internal/camera"
	"github.com/ppiankov/virasat/internal/discovery"
	"github.com/ppiankov/virasat/internal/encode"
	"github.com/ppiankov/virasat/internal/geo"
	"github.com/ppiankov/virasat/internal/kv"
	"github.com/ppiankov/virasat/internal/llm"
	"github.com/ppiankov/virasat/internal/logging"
	"github.com/ppiankov/virasat/internal/metrics"
	"github.com/ppiankov/virasat/internal/model"
	"github.com/ppiankov/virasat/internal/notify"
	"github.com/ppiankov/virasat/internal/server"
	"github.com/ppiankov/virasat/internal/verify"
	"github.com/ppiankov/virasat/internal/worker"
	"github.com/ppiankov/virasat/internal/workflow"
)

// Pipeline owns every long-lived component
type Pipeline struct {
	config   *model.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	backend  kv.Store
	store    *discovery.Store
	verifier *verify.Verifier
	camera   *camera.FileCamera
	locator  geo.Locator
	notifier notify.Publisher
	manager  *workflow.Manager
}

// Options override parts of the assembly (mainly for tests and CLI flags)
type Options struct {
	Logger   *slog.Logger
	Provider llm.Provider // overrides cfg.AI
	Locator  geo.Locator  // overrides cfg.Location
}

// NewPipeline creates a pipeline with the given configuration. A provider
// that cannot be created is logged; verification then falls back.
func NewPipeline(ctx context.Context, cfg *model.Config, opts Options) (*Pipeline, error) {
	logger := logging.OrDiscard(opts.Logger)

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	backend, err := kv.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	provider := opts.Provider
	if provider == nil {
		p, err := llm.NewProvider(llm.ConfigFromModel(cfg.AI))
		if err != nil {
			logger.Warn("AI provider unavailable; verifications will fall back", "provider", cfg.AI.Provider, "error", err)
		} else {
			provider = p
		}
	}

	locator := opts.Locator
	if locator == nil {
		locator, err = geo.FromConfig(cfg.Location)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
	}

	notifier, err := notify.FromConfig(cfg.MQTT, logger)
	if err != nil {
		logger.Warn("claim notifications disabled", "error", err)
		notifier = notify.NopPublisher{}
	}

	var limiter *worker.Limiter
	if cfg.AI.RequestsPerSecond > 0 {
		limiter = worker.NewLimiter(cfg.AI.RequestsPerSecond, cfg.AI.BurstSize)
	}

	verifier := verify.New(verify.Options{
		Provider:  provider,
		Loader:    encode.NewLoader(cfg.Capture.Timeout, cfg.Capture.UserAgent, cfg.Capture.MaxBytes),
		Cache:     cache.FromConfig(cfg.Cache),
		CacheTTL:  cfg.Cache.DiskTTL,
		Limiter:   limiter,
		Metrics:   m,
		Logger:    logger,
		Timeout:   time.Duration(cfg.AI.Timeout) * time.Second,
		Model:     cfg.AI.Model,
		MaxTokens: cfg.AI.MaxTokens,
	})

	store := discovery.NewStore(backend, logger)
	cam := camera.NewFileCamera(cfg.Capture.Dir, "")

	p := &Pipeline{
		config:   cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		backend:  backend,
		store:    store,
		verifier: verifier,
		camera:   cam,
		locator:  locator,
		notifier: notifier,
	}
	p.manager = workflow.NewManager(ctx, workflow.Deps{
		Camera:   cam,
		Verifier: verifier,
		Locator:  locator,
		Store:    store,
		Notifier: notifier,
		Metrics:  m,
		Logger:   logger,
	})

	if all, err := store.LoadAll(ctx); err == nil {
		m.SetDiscoveries(len(all))
	}

	return p, nil
}

// Close releases storage and broker connections
func (p *Pipeline) Close() error {
	p.manager.Close()
	p.notifier.Close()
	return p.backend.Close()
}

// Store returns the discovery store
func (p *Pipeline) Store() *discovery.Store { return p.store }

// Verifier returns the configured verifier
func (p *Pipeline) Verifier() *verify.Verifier { return p.verifier }

// Manager returns the workflow manager
func (p *Pipeline) Manager() *workflow.Manager { return p.manager }

// Server builds the map API over this pipeline's store and metrics
func (p *Pipeline) Server() *server.Server {
	return server.New(server.Options{
		Store:    p.store,
		Metrics:  p.metrics,
		Gatherer: p.registry,
		Logger:   p.logger,
	})
}

// ScanResult is the outcome of a full capture, verify, claim pass
type ScanResult struct {
	SessionID string                    `json:"session_id"`
	State     string                    `json:"state"`
	Image     model.CapturedImage       `json:"image"`
	Verdict   model.VerificationVerdict `json:"verdict"`
	Record    *model.DiscoveryRecord    `json:"record,omitempty"`
	Score     int                       `json:"score,omitempty"`
}

// Claimed reports whether the scan stored a discovery
func (r *ScanResult) Claimed() bool {
	return r.Record != nil
}

// observe copies the session's current state into the result
func (r *ScanResult) observe(snap workflow.Snapshot) {
	r.SessionID = snap.ID
	r.State = snap.State.String()
	if !snap.Image.IsZero() {
		r.Image = snap.Image
	}
	if snap.State == workflow.Accepted || snap.State == workflow.Rejected || snap.State == workflow.Claimed {
		r.Verdict = snap.Verdict
	}
	if snap.State == workflow.Claimed {
		rec := snap.Record
		r.Record = &rec
	}
}

// ConfirmFunc decides whether an accepted verdict should be claimed
type ConfirmFunc func(model.VerificationVerdict) bool

// ScanPhoto runs one session for the photo at path. Rejected photos are
// discarded; accepted ones are claimed when confirm approves.
func (p *Pipeline) ScanPhoto(ctx context.Context, path string, confirm ConfirmFunc) (*ScanResult, error) {
	p.camera.SetSource(path)
	s := p.manager.Begin()
	result := &ScanResult{}

	if _, err := s.Capture(ctx); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	verdict, err := s.Verify(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	result.observe(s.Snapshot())

	if !verdict.Valid {
		if err := s.Retry(); err != nil {
			return nil, err
		}
		result.observe(s.Snapshot())
		return result, nil
	}

	if confirm != nil && !confirm(verdict) {
		return result, nil
	}

	if _, err := s.Claim(ctx); err != nil {
		result.observe(s.Snapshot())
		var ce *workflow.ClaimError
		if errors.As(err, &ce) {
			return result, err
		}
		return nil, fmt.Errorf("claim: %w", err)
	}
	result.observe(s.Snapshot())

	score, err := p.store.Score(ctx)
	if err != nil {
		return result, err
	}
	result.Score = score
	return result, nil
}

// Batch pre-screens every photo under path without claiming
func (p *Pipeline) Batch(ctx context.Context, path string, concurrency int) ([]*worker.VerifyResult, error) {
	return worker.NewBatchProcessor(p.verifier, concurrency).ProcessPath(ctx, path)
}
