// Package workflow drives one capture, verify, claim session at a time.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/virasat/internal/camera"
	"github.com/ppiankov/virasat/internal/geo"
	"github.com/ppiankov/virasat/internal/logging"
	"github.com/ppiankov/virasat/internal/metrics"
	"github.com/ppiankov/virasat/internal/model"
	"github.com/ppiankov/virasat/internal/notify"
)

// Verifier resolves a captured photo to a terminal verdict
type Verifier interface {
	VerifyLocator(ctx context.Context, locator string) model.VerificationVerdict
}

// Repository persists claimed discoveries
type Repository interface {
	Append(ctx context.Context, rec model.DiscoveryRecord) (model.DiscoveryRecord, error)
}

// Deps are the collaborators shared by every session
type Deps struct {
	Camera   camera.Camera
	Verifier Verifier
	Locator  geo.Locator
	Store    Repository
	Notifier notify.Publisher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Manager owns the single active session
type Manager struct {
	deps    Deps
	parent  context.Context
	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager. Sessions are cancelled when parent ends.
func NewManager(parent context.Context, deps Deps) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = logging.Module(deps.Logger, "workflow")
	return &Manager{deps: deps, parent: parent}
}

// Begin supersedes the active session, if any, and starts a new one in Idle
func (m *Manager) Begin() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.supersede()
	}

	ctx, cancel := context.WithCancel(m.parent)
	s := &Session{
		id:     uuid.NewString(),
		deps:   &m.deps,
		ctx:    ctx,
		cancel: cancel,
		state:  Idle,
	}
	s.logger = m.deps.Logger.With("session", s.id)
	m.current = s

	s.logger.Debug("session started")
	return s
}

// Current returns the active session, or nil before the first Begin
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close supersedes the active session
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.supersede()
		m.current = nil
	}
}
