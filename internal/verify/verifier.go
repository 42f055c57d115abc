// Package verify asks a multimodal model whether a photo shows a heritage
// structure and turns the reply into a terminal verdict.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ppiankov/virasat/internal/cache"
	"github.com/ppiankov/virasat/internal/encode"
	"github.com/ppiankov/virasat/internal/llm"
	"github.com/ppiankov/virasat/internal/logging"
	"github.com/ppiankov/virasat/internal/metrics"
	"github.com/ppiankov/virasat/internal/model"
	"github.com/ppiankov/virasat/internal/worker"
)

// DefaultTimeout bounds a single verification round trip
const DefaultTimeout = 30 * time.Second

// DefaultCacheTTL is used for cached verdicts when Options.CacheTTL is zero
const DefaultCacheTTL = 7 * 24 * time.Hour

// Options configures a Verifier. Only Provider is required.
type Options struct {
	Provider  llm.Provider
	Loader    *encode.Loader
	Cache     cache.Cache
	CacheTTL  time.Duration
	Limiter   *worker.Limiter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Timeout   time.Duration
	Model     string
	MaxTokens int
}

// Verifier performs heritage verification. Safe for concurrent use.
type Verifier struct {
	provider  llm.Provider
	loader    *encode.Loader
	cache     cache.Cache
	cacheTTL  time.Duration
	limiter   *worker.Limiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration
	model     string
	maxTokens int
}

// New creates a verifier
func New(opts Options) *Verifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Loader == nil {
		opts.Loader = encode.NewLoader(opts.Timeout, "", 0)
	}
	return &Verifier{
		provider:  opts.Provider,
		loader:    opts.Loader,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		logger:    logging.Module(opts.Logger, "verify"),
		timeout:   opts.Timeout,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}
}

// ProviderName returns the name of the configured vendor
func (v *Verifier) ProviderName() string {
	if v.provider == nil {
		return ""
	}
	return v.provider.Name()
}

// Check pings the configured vendor
func (v *Verifier) Check(ctx context.Context) error {
	if v.provider == nil {
		return errors.New("no provider configured")
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.provider.Ping(ctx)
}

// VerifyLocator loads and verifies the photo at locator. Read failures
// resolve to the fallback verdict.
func (v *Verifier) VerifyLocator(ctx context.Context, locator string) model.VerificationVerdict {
	img, err := v.loader.Load(ctx, locator)
	if err != nil {
		v.logger.Warn("image unreadable", "locator", locator, "error", err)
		v.metrics.RecordVerification(v.ProviderName(), metrics.OutcomeFallback, 0)
		return model.FallbackVerdict()
	}
	return v.Verify(ctx, img)
}

// Verify sends one request for img and returns a terminal verdict. It never
// fails: transport, timeout and parse problems yield model.FallbackVerdict.
func (v *Verifier) Verify(ctx context.Context, img *encode.EncodedImage) model.VerificationVerdict {
	if img == nil || img.Data == "" || v.provider == nil {
		v.logger.Warn("verification skipped", "has_image", img != nil, "has_provider", v.provider != nil)
		return model.FallbackVerdict()
	}

	name := v.provider.Name()
	key := cache.VerdictKey(name, v.model, img.Digest)
	if verdict, ok := v.cached(key); ok {
		v.logger.Debug("verdict cache hit", "digest", img.Digest)
		return verdict
	}

	start := time.Now()
	verdict := v.call(ctx, img)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeRejected
	switch {
	case verdict.IsFallback():
		outcome = metrics.OutcomeFallback
	case verdict.Valid:
		outcome = metrics.OutcomeAccepted
	}
	v.metrics.RecordVerification(name, outcome, elapsed)
	v.logger.Info("verification complete",
		"provider", name, "outcome", outcome, "duration", elapsed.Round(time.Millisecond))

	if !verdict.IsFallback() {
		v.store(key, verdict)
	}
	return verdict
}

func (v *Verifier) call(ctx context.Context, img *encode.EncodedImage) model.VerificationVerdict {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if v.limiter != nil {
		if err := v.limiter.Wait(ctx, v.provider.Name()); err != nil {
			v.logger.Warn("rate limiter wait aborted", "error", err)
			return model.FallbackVerdict()
		}
	}

	resp, err := v.provider.Analyze(ctx, llm.AnalyzeRequest{
		Prompt:    llm.HeritagePrompt,
		ImageData: img.Data,
		MIMEType:  img.MIMEType,
		Model:     v.model,
		MaxTokens: v.maxTokens,
	})
	if err != nil {
		v.logger.Warn("verification request failed", "error", err)
		return model.FallbackVerdict()
	}

	verdict, err := ParseVerdict(resp.Text)
	if err != nil {
		v.logger.Warn("unusable verification reply", "error", err)
		return model.FallbackVerdict()
	}
	return verdict
}

func (v *Verifier) cached(key string) (model.VerificationVerdict, bool) {
	if v.cache == nil {
		return model.VerificationVerdict{}, false
	}

	data, ok := v.cache.Get(key)
	if ok {
		var verdict model.VerificationVerdict
		if err := json.Unmarshal(data, &verdict); err == nil && verdict.Check() == nil && !verdict.IsFallback() {
			v.metrics.RecordCacheLookup(true)
			return verdict, true
		}
		_ = v.cache.Delete(key)
	}
	v.metrics.RecordCacheLookup(false)
	return model.VerificationVerdict{}, false
}

func (v *Verifier) store(key string, verdict model.VerificationVerdict) {
	if v.cache == nil {
		return
	}
	data, err := json.Marshal(verdict)
	if err != nil {
		return
	}
	if err := v.cache.Set(key, data, v.cacheTTL); err != nil {
		v.logger.Debug("verdict cache write failed", "error", err)
	}
}
