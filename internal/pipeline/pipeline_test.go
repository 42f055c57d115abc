package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/virasat/internal/geo"
	"github.com/ppiankov/virasat/internal/llm"
	"github.com/ppiankov/virasat/internal/model"
	"github.com/ppiankov/virasat/internal/workflow"
)

// keywordProvider accepts any prompt whose image decodes to "fort"
type keywordProvider struct{}

func (keywordProvider) Name() string                  { return "keyword" }
func (keywordProvider) Ping(ctx context.Context) error { return nil }

func (keywordProvider) Analyze(ctx context.Context, req llm.AnalyzeRequest) (*llm.AnalyzeResponse, error) {
	// "Zm9ydA==" is base64("fort")
	if req.ImageData == "Zm9ydA==" {
		return &llm.AnalyzeResponse{Text: "```json\n{\"valid\": true, \"name\": \"Lost Stepwell\", \"era\": \"Mughal\", \"narrative\": \"Carved steps.\"}\n```"}, nil
	}
	return &llm.AnalyzeResponse{Text: `{"valid": false, "rejection_reason": "This is a cat."}`}, nil
}

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	root := t.TempDir()
	cfg := model.DefaultConfig()
	cfg.Storage.Path = filepath.Join(root, "data")
	cfg.Capture.Dir = filepath.Join(root, "captures")
	cfg.Cache.DiskDir = filepath.Join(root, "cache")
	return cfg
}

func writePhoto(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestPipeline(t *testing.T, cfg *model.Config, locator geo.Locator) *Pipeline {
	t.Helper()
	if locator == nil {
		locator = geo.NewStaticLocator(28.5, 77.3)
	}
	p, err := NewPipeline(context.Background(), cfg, Options{Provider: keywordProvider{}, Locator: locator})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestScanPhoto_Claims(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)

	res, err := p.ScanPhoto(context.Background(), writePhoto(t, "fort.jpg", "fort"), nil)
	require.NoError(t, err)
	assert.True(t, res.Verdict.Valid)
	require.True(t, res.Claimed())
	assert.Equal(t, "Lost Stepwell", res.Record.Name)
	assert.Equal(t, 500, res.Score)
	assert.Equal(t, "claimed", res.State)
	assert.FileExists(t, res.Record.Image)
}

func TestScanPhoto_RejectedDiscardsCapture(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, nil)

	res, err := p.ScanPhoto(context.Background(), writePhoto(t, "cat.jpg", "meow"), nil)
	require.NoError(t, err)
	assert.False(t, res.Verdict.Valid)
	assert.False(t, res.Claimed())
	assert.Equal(t, "idle", res.State)
	assert.Equal(t, "This is a cat.", res.Verdict.RejectionReason)
	assert.NoFileExists(t, res.Image.URI)

	score, err := p.Store().Score(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestScanPhoto_Declined(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)

	res, err := p.ScanPhoto(context.Background(), writePhoto(t, "fort.jpg", "fort"),
		func(model.VerificationVerdict) bool { return false })
	require.NoError(t, err)
	assert.True(t, res.Verdict.Valid)
	assert.False(t, res.Claimed())
	assert.Equal(t, "accepted", res.State)
	assert.Equal(t, workflow.Accepted, p.Manager().Current().State())
}

type deniedLocator struct{}

func (deniedLocator) Locate(ctx context.Context) (model.Coordinates, error) {
	return model.Coordinates{}, &geo.LocationUnavailableError{Provider: "test", Err: errors.New("denied")}
}

func TestScanPhoto_ClaimErrorIsRetryable(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), deniedLocator{})

	res, err := p.ScanPhoto(context.Background(), writePhoto(t, "fort.jpg", "fort"), nil)
	var ce *workflow.ClaimError
	require.ErrorAs(t, err, &ce)
	require.NotNil(t, res)
	assert.True(t, res.Verdict.Valid)
	assert.Equal(t, workflow.Accepted, p.Manager().Current().State())
}

func TestScanPhoto_DefaultConfigDoesNotInventLocation(t *testing.T) {
	cfg := testConfig(t)
	p, err := NewPipeline(context.Background(), cfg, Options{Provider: keywordProvider{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	res, err := p.ScanPhoto(context.Background(), writePhoto(t, "fort.jpg", "fort"), nil)
	var ce *workflow.ClaimError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, workflow.ReasonLocation, ce.Reason)
	require.NotNil(t, res)
	assert.False(t, res.Claimed())
	assert.Equal(t, "accepted", res.State)

	all, err := p.Store().LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestScanPhoto_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "sqlite"
	p := newTestPipeline(t, cfg, nil)

	_, err := p.ScanPhoto(context.Background(), writePhoto(t, "fort.jpg", "fort"), nil)
	require.NoError(t, err)

	all, err := p.Store().LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBatch(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("fort"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("meow"), 0o644))

	results, err := p.Batch(context.Background(), dir, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Verdict.Valid)
	assert.False(t, results[1].Verdict.Valid)

	all, err := p.Store().LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "batch never claims")
}

func TestServerWiring(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)
	_, err := p.ScanPhoto(context.Background(), writePhoto(t, "fort.jpg", "fort"), nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	p.Server().Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "virasat_claims_total 1"))
}

func TestNewPipeline_BadProviderFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.Provider = "carrier-pigeon"

	p, err := NewPipeline(context.Background(), cfg, Options{Locator: geo.NewStaticLocator(0, 0)})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	res, err := p.ScanPhoto(context.Background(), writePhoto(t, "fort.jpg", "fort"), nil)
	require.NoError(t, err)
	assert.True(t, res.Verdict.IsFallback())
	assert.Error(t, p.Verifier().Check(context.Background()))
}
