package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ppiankov/virasat/internal/camera"
	"github.com/ppiankov/virasat/internal/discovery"
	"github.com/ppiankov/virasat/internal/geo"
	"github.com/ppiankov/virasat/internal/kv"
	"github.com/ppiankov/virasat/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubVerifier returns a fixed verdict, or blocks until released or cancelled
type stubVerifier struct {
	verdict model.VerificationVerdict
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (v *stubVerifier) VerifyLocator(ctx context.Context, locator string) model.VerificationVerdict {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()

	if v.started != nil {
		close(v.started)
	}
	if v.release != nil {
		select {
		case <-v.release:
		case <-ctx.Done():
			return model.FallbackVerdict()
		}
	}
	return v.verdict
}

// stubLocator fails the first failures calls
type stubLocator struct {
	coords   model.Coordinates
	failures int
}

func (l *stubLocator) Locate(ctx context.Context) (model.Coordinates, error) {
	if l.failures > 0 {
		l.failures--
		return model.Coordinates{}, &geo.LocationUnavailableError{Provider: "stub", Err: errors.New("permission denied")}
	}
	return l.coords, nil
}

// flakyStore fails the first failures appends
type flakyStore struct {
	*discovery.Store
	failures int
}

func (f *flakyStore) Append(ctx context.Context, rec model.DiscoveryRecord) (model.DiscoveryRecord, error) {
	if f.failures > 0 {
		f.failures--
		return model.DiscoveryRecord{}, &discovery.PersistenceError{Op: "save", Err: errors.New("disk full")}
	}
	return f.Store.Append(ctx, rec)
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []model.DiscoveryRecord
}

func (p *recordingPublisher) PublishDiscovery(ctx context.Context, rec model.DiscoveryRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return nil
}

func (p *recordingPublisher) Close() {}

type fixture struct {
	manager   *Manager
	store     *discovery.Store
	verifier  *stubVerifier
	locator   *stubLocator
	publisher *recordingPublisher
	captures  string
}

var stepwellVerdict = model.Accept("Lost Stepwell", "Mughal, 17th century", "Carved steps lead down to a silent pool.")

func newFixture(t *testing.T, verdict model.VerificationVerdict) *fixture {
	t.Helper()

	src := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(src, []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0o644))

	backend, err := kv.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		store:     discovery.NewStore(backend, nil),
		verifier:  &stubVerifier{verdict: verdict},
		locator:   &stubLocator{coords: model.Coordinates{Latitude: 28.5, Longitude: 77.3}},
		publisher: &recordingPublisher{},
		captures:  t.TempDir(),
	}
	f.manager = NewManager(context.Background(), Deps{
		Camera:   camera.NewFileCamera(f.captures, src),
		Verifier: f.verifier,
		Locator:  f.locator,
		Store:    f.store,
		Notifier: f.publisher,
		Now:      func() time.Time { return time.UnixMilli(1700000000000) },
	})
	t.Cleanup(f.manager.Close)
	return f
}

func captureFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestLostStepwellScenario(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	ctx := context.Background()
	s := f.manager.Begin()
	assert.Equal(t, Idle, s.State())

	img, err := s.Capture(ctx)
	require.NoError(t, err)
	assert.Equal(t, Captured, s.State())

	verdict, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, Accepted, s.State())

	rec, err := s.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, Claimed, s.State())
	assert.Equal(t, int64(1700000000000), rec.ID)
	assert.Equal(t, img.URI, rec.Image)
	assert.Equal(t, "Lost Stepwell", rec.Name)
	require.NotNil(t, rec.Coords)
	assert.Equal(t, model.Coordinates{Latitude: 28.5, Longitude: 77.3}, *rec.Coords)

	all, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec, all[0])

	score, err := f.store.Score(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, score)

	assert.FileExists(t, img.URI, "claimed photo is kept")
	assert.Len(t, f.publisher.recs, 1)

	_, err = s.Claim(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition, "claimed is terminal")
}

func TestCatScenario(t *testing.T) {
	f := newFixture(t, model.Reject("This is a cat, not a monument."))
	ctx := context.Background()
	s := f.manager.Begin()

	img, err := s.Capture(ctx)
	require.NoError(t, err)

	verdict, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Equal(t, Rejected, s.State())

	_, err = s.Claim(ctx)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Rejected, te.From)

	require.NoError(t, s.Retry())
	assert.Equal(t, Idle, s.State())
	assert.NoFileExists(t, img.URI)
	assert.Equal(t, 0, captureFiles(t, f.captures))

	all, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFallbackVerdictIsRejected(t *testing.T) {
	f := newFixture(t, model.FallbackVerdict())
	ctx := context.Background()
	s := f.manager.Begin()

	_, err := s.Capture(ctx)
	require.NoError(t, err)
	verdict, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.FallbackReason, verdict.RejectionReason)
	assert.Equal(t, Rejected, s.State())
}

func TestRetake(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	s := f.manager.Begin()

	img, err := s.Capture(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Retake())
	assert.Equal(t, Idle, s.State())
	assert.NoFileExists(t, img.URI)

	assert.ErrorIs(t, s.Retake(), ErrInvalidTransition)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	ctx := context.Background()
	s := f.manager.Begin()

	_, err := s.Verify(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Claim(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.Retry(), ErrInvalidTransition)

	_, err = s.Capture(ctx)
	require.NoError(t, err)
	_, err = s.Capture(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Verify(ctx)
	require.NoError(t, err)
	_, err = s.Verify(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition, "verification runs once per capture")
	assert.Equal(t, 1, f.verifier.calls)
}

func TestClaim_LocationFailureReturnsToAccepted(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	f.locator.failures = 1
	ctx := context.Background()
	s := f.manager.Begin()

	_, err := s.Capture(ctx)
	require.NoError(t, err)
	_, err = s.Verify(ctx)
	require.NoError(t, err)

	_, err = s.Claim(ctx)
	var ce *ClaimError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonLocation, ce.Reason)
	assert.True(t, ce.Retryable())
	var lue *geo.LocationUnavailableError
	assert.ErrorAs(t, err, &lue)
	assert.Equal(t, Accepted, s.State())

	rec, err := s.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Lost Stepwell", rec.Name)
}

func TestClaim_PersistenceFailureReturnsToAccepted(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	store := &flakyStore{Store: f.store, failures: 1}
	f.manager.deps.Store = store
	ctx := context.Background()
	s := f.manager.Begin()

	_, err := s.Capture(ctx)
	require.NoError(t, err)
	_, err = s.Verify(ctx)
	require.NoError(t, err)

	_, err = s.Claim(ctx)
	var ce *ClaimError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonPersistence, ce.Reason)
	var pe *discovery.PersistenceError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, Accepted, s.State())

	_, err = s.Claim(ctx)
	require.NoError(t, err)
	all, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStaleVerificationDiscarded(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	f.verifier.started = make(chan struct{})
	f.verifier.release = make(chan struct{})
	ctx := context.Background()

	old := f.manager.Begin()
	img, err := old.Capture(ctx)
	require.NoError(t, err)

	type result struct {
		verdict model.VerificationVerdict
		err     error
	}
	done := make(chan result, 1)
	go func() {
		v, err := old.Verify(ctx)
		done <- result{v, err}
	}()
	<-f.verifier.started

	fresh := f.manager.Begin()
	res := <-done

	assert.ErrorIs(t, res.err, ErrSuperseded)
	assert.False(t, res.verdict.Valid)
	assert.True(t, old.Superseded())
	assert.NoFileExists(t, img.URI)

	assert.Equal(t, Idle, fresh.State())
	assert.Same(t, fresh, f.manager.Current())
	all, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = old.Claim(ctx)
	assert.ErrorIs(t, err, ErrSuperseded)
}

func TestBeginSupersedesAcceptedSession(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	ctx := context.Background()

	old := f.manager.Begin()
	_, err := old.Capture(ctx)
	require.NoError(t, err)
	_, err = old.Verify(ctx)
	require.NoError(t, err)

	f.manager.Begin()
	_, err = old.Claim(ctx)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, 0, captureFiles(t, f.captures))
}

// blockingLocator waits for cancellation once started
type blockingLocator struct {
	started chan struct{}
}

func (l *blockingLocator) Locate(ctx context.Context) (model.Coordinates, error) {
	close(l.started)
	<-ctx.Done()
	return model.Coordinates{}, &geo.LocationUnavailableError{Provider: "blocking", Err: ctx.Err()}
}

func TestBeginCancelsInFlightClaim(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	locator := &blockingLocator{started: make(chan struct{})}
	f.manager.deps.Locator = locator
	ctx := context.Background()

	old := f.manager.Begin()
	_, err := old.Capture(ctx)
	require.NoError(t, err)
	_, err = old.Verify(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := old.Claim(ctx)
		done <- err
	}()
	<-locator.started

	f.manager.Begin()
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("claim not cancelled by a new session")
	}

	assert.ErrorIs(t, err, ErrSuperseded)
	assert.True(t, old.Superseded())
	assert.Equal(t, 0, captureFiles(t, f.captures))
	all, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.publisher.recs)
}

func TestSessionIDsAreUnique(t *testing.T) {
	f := newFixture(t, stepwellVerdict)
	a := f.manager.Begin()
	b := f.manager.Begin()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotEmpty(t, a.ID())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "state(42)", State(42).String())
}
