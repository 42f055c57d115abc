package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ppiankov/virasat/internal/model"
)

// Session is one pass through the flow. Methods are safe for concurrent
// use; remote calls and storage I/O run without holding the lock, guarded
// by the Verifying and Claiming states.
type Session struct {
	id     string
	deps   *Deps
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	image      model.CapturedImage
	verdict    model.VerificationVerdict
	record     model.DiscoveryRecord
	superseded bool
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	ID      string
	State   State
	Image   model.CapturedImage
	Verdict model.VerificationVerdict
	Record  model.DiscoveryRecord
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot copies the session's observable fields
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{ID: s.id, State: s.state, Image: s.image, Verdict: s.verdict, Record: s.record}
}

// Superseded reports whether a newer session replaced this one
func (s *Session) Superseded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.superseded
}

// Capture acquires a photo: Idle -> Captured. A camera failure keeps Idle.
func (s *Session) Capture(ctx context.Context) (model.CapturedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("capture", Idle); err != nil {
		return model.CapturedImage{}, err
	}

	img, err := s.deps.Camera.Capture(ctx)
	if err != nil {
		s.logger.Warn("capture failed", "error", err)
		return model.CapturedImage{}, err
	}

	s.image = img
	s.transition(Captured)
	return img, nil
}

// Retake discards the photo under review: Captured -> Idle
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("retake", Captured); err != nil {
		return err
	}
	s.discardImage()
	s.transition(Idle)
	return nil
}

// Verify runs the single verification of the captured photo:
// Captured -> Verifying -> Accepted or Rejected. The verdict is always
// terminal; the error is only a state error or ErrSuperseded.
func (s *Session) Verify(ctx context.Context) (model.VerificationVerdict, error) {
	s.mu.Lock()
	if err := s.check("verify", Captured); err != nil {
		s.mu.Unlock()
		return model.VerificationVerdict{}, err
	}
	uri := s.image.URI
	s.transition(Verifying)
	s.mu.Unlock()

	vctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	verdict := s.deps.Verifier.VerifyLocator(vctx, uri)
	stop()
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.superseded {
		s.logger.Info("discarding stale verification result")
		return model.VerificationVerdict{}, ErrSuperseded
	}

	s.verdict = verdict
	if verdict.Valid {
		s.transition(Accepted)
	} else {
		s.transition(Rejected)
	}
	return verdict, nil
}

// Retry abandons a rejected photo: Rejected -> Idle
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("retry", Rejected); err != nil {
		return err
	}
	s.discardImage()
	s.verdict = model.VerificationVerdict{}
	s.transition(Idle)
	return nil
}

// Claim locates the device and persists the discovery:
// Accepted -> Claiming -> Claimed. Location or storage failures return the
// session to Accepted and yield a *ClaimError. Superseding the session
// cancels the lookup and the write.
func (s *Session) Claim(ctx context.Context) (model.DiscoveryRecord, error) {
	s.mu.Lock()
	if err := s.check("claim", Accepted); err != nil {
		s.mu.Unlock()
		return model.DiscoveryRecord{}, err
	}
	image, verdict := s.image, s.verdict
	s.transition(Claiming)
	s.mu.Unlock()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	coords, err := s.deps.Locator.Locate(cctx)
	if err != nil {
		return model.DiscoveryRecord{}, s.claimFailed(ReasonLocation, err)
	}

	rec, err := model.NewDiscoveryRecord(model.IDFromTime(s.deps.Now()), image.URI, coords, verdict)
	if err != nil {
		return model.DiscoveryRecord{}, s.claimFailed(ReasonPersistence, err)
	}

	s.mu.Lock()
	if s.superseded {
		s.discardImage()
		s.mu.Unlock()
		return model.DiscoveryRecord{}, ErrSuperseded
	}
	s.mu.Unlock()

	stored, err := s.deps.Store.Append(cctx, rec)
	if err != nil {
		return model.DiscoveryRecord{}, s.claimFailed(ReasonPersistence, err)
	}

	s.mu.Lock()
	s.record = stored
	s.transition(Claimed)
	s.mu.Unlock()

	s.deps.Metrics.RecordClaim()
	if err := s.deps.Notifier.PublishDiscovery(ctx, stored); err != nil {
		s.logger.Warn("claim notification failed", "id", stored.ID, "error", err)
	}

	return stored, nil
}

func (s *Session) claimFailed(reason string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deps.Metrics.RecordClaimFailure(reason)
	s.logger.Warn("claim failed", "reason", reason, "error", err)

	if s.superseded {
		s.discardImage()
		return ErrSuperseded
	}
	s.transition(Accepted)
	return &ClaimError{Reason: reason, Err: err}
}

// check must be called with mu held
func (s *Session) check(op string, want State) error {
	if s.superseded {
		return ErrSuperseded
	}
	if s.state != want {
		return &TransitionError{From: s.state, Op: op}
	}
	return nil
}

// transition must be called with mu held
func (s *Session) transition(to State) {
	s.logger.Debug("state change", "from", s.state, "to", to)
	s.state = to
}

// discardImage must be called with mu held
func (s *Session) discardImage() {
	if s.image.IsZero() {
		return
	}
	if err := s.deps.Camera.Discard(s.image); err != nil {
		s.logger.Warn("discard capture failed", "uri", s.image.URI, "error", err)
	}
	s.image = model.CapturedImage{}
}

// supersede cancels in-flight work and releases an unclaimed photo
func (s *Session) supersede() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.superseded {
		return
	}
	s.superseded = true
	s.cancel()

	switch s.state {
	case Captured, Verifying, Accepted, Rejected:
		s.discardImage()
	}
	s.logger.Debug("session superseded", "state", s.state)
}
