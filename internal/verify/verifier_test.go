package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/virasat/internal/cache"
	"github.com/ppiankov/virasat/internal/encode"
	"github.com/ppiankov/virasat/internal/llm"
	"github.com/ppiankov/virasat/internal/metrics"
	"github.com/ppiankov/virasat/internal/model"
	"github.com/ppiankov/virasat/internal/worker"
)

// stubProvider returns a canned reply or error
type stubProvider struct {
	text  string
	err   error
	block bool
	calls int32
	last  llm.AnalyzeRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Ping(ctx context.Context) error { return s.err }

func (s *stubProvider) Analyze(ctx context.Context, req llm.AnalyzeRequest) (*llm.AnalyzeResponse, error) {
	atomic.AddInt32(&s.calls, 1)
	s.last = req
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.AnalyzeResponse{Text: s.text, Model: "stub-1"}, nil
}

const stepwellReply = "```json\n{\"valid\": true, \"name\": \"Lost Stepwell\", \"era\": \"Mughal\", \"narrative\": \"Water for a village.\"}\n```"

func testImage() *encode.EncodedImage {
	return encode.Encode([]byte{0xFF, 0xD8, 0xFF, 0xE0, 'j', 'p', 'g'})
}

func TestVerify_Accepted(t *testing.T) {
	p := &stubProvider{text: stepwellReply}
	v := New(Options{Provider: p})

	verdict := v.Verify(context.Background(), testImage())
	assert.True(t, verdict.Valid)
	assert.Equal(t, "Lost Stepwell", verdict.Name)

	assert.Equal(t, llm.HeritagePrompt, p.last.Prompt)
	assert.Equal(t, "image/jpeg", p.last.MIMEType)
	assert.NotEmpty(t, p.last.ImageData)
}

func TestVerify_NonHeritageNeverValid(t *testing.T) {
	p := &stubProvider{text: `{"valid": false, "rejection_reason": "This is a cat."}`}
	v := New(Options{Provider: p})

	verdict := v.Verify(context.Background(), testImage())
	assert.False(t, verdict.Valid)
	assert.Equal(t, "This is a cat.", verdict.RejectionReason)
}

func TestVerify_Fallbacks(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
	}{
		{"transport failure", &stubProvider{err: errors.New("connection refused")}},
		{"non-json reply", &stubProvider{text: "looks old to me"}},
		{"missing fields", &stubProvider{text: `{"valid": true}`}},
		{"empty reply", &stubProvider{text: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(Options{Provider: tt.provider})
			verdict := v.Verify(context.Background(), testImage())
			assert.Equal(t, model.FallbackVerdict(), verdict)
			assert.Equal(t, model.FallbackReason, verdict.RejectionReason)
		})
	}
}

func TestVerify_Timeout(t *testing.T) {
	p := &stubProvider{block: true}
	v := New(Options{Provider: p, Timeout: 50 * time.Millisecond})

	start := time.Now()
	verdict := v.Verify(context.Background(), testImage())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, verdict.IsFallback())
}

func TestVerify_NilImage(t *testing.T) {
	p := &stubProvider{text: stepwellReply}
	v := New(Options{Provider: p})

	assert.True(t, v.Verify(context.Background(), nil).IsFallback())
	assert.Zero(t, atomic.LoadInt32(&p.calls))
}

func TestVerify_CachesDefinitiveVerdicts(t *testing.T) {
	p := &stubProvider{text: stepwellReply}
	c := cache.NewMemoryCache(time.Hour, time.Minute)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	v := New(Options{Provider: p, Cache: c, Metrics: m})

	first := v.Verify(context.Background(), testImage())
	second := v.Verify(context.Background(), testImage())

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}

func TestVerify_DoesNotCacheFallback(t *testing.T) {
	p := &stubProvider{err: errors.New("offline")}
	c := cache.NewMemoryCache(time.Hour, time.Minute)
	v := New(Options{Provider: p, Cache: c})

	v.Verify(context.Background(), testImage())
	v.Verify(context.Background(), testImage())

	assert.Equal(t, int32(2), atomic.LoadInt32(&p.calls))
	assert.Zero(t, c.Len())
}

func TestVerify_RateLimiterCancelled(t *testing.T) {
	p := &stubProvider{text: stepwellReply}
	limiter := worker.NewLimiter(0.01, 1)
	require.NoError(t, limiter.Wait(context.Background(), "stub"))
	v := New(Options{Provider: p, Limiter: limiter, Timeout: 50 * time.Millisecond})

	assert.True(t, v.Verify(context.Background(), testImage()).IsFallback())
	assert.Zero(t, atomic.LoadInt32(&p.calls))
}

func TestVerifyLocator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stepwell.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3}, 0o644))

	p := &stubProvider{text: stepwellReply}
	v := New(Options{Provider: p})

	assert.True(t, v.VerifyLocator(context.Background(), path).Valid)
	assert.True(t, v.VerifyLocator(context.Background(), filepath.Join(dir, "missing.jpg")).IsFallback())
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}

func TestCheck(t *testing.T) {
	v := New(Options{Provider: &stubProvider{}})
	assert.NoError(t, v.Check(context.Background()))

	v = New(Options{Provider: &stubProvider{err: errors.New("bad key")}})
	assert.Error(t, v.Check(context.Background()))

	assert.Error(t, New(Options{}).Check(context.Background()))
}
