package wizard

import (
	"context"
	"sync"

	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/models"
)

// Manager holds one session per provider. Opening a provider resets every
// other provider's session so only one import is in flight.
type Manager struct {
	mu       sync.Mutex
	sessions map[models.Provider]Session
	active   models.Provider
}

// NewManager creates a manager over the given provider sessions
func NewManager(sessions ...Session) *Manager {
	m := &Manager{sessions: make(map[models.Provider]Session, len(sessions))}
	for _, s := range sessions {
		m.sessions[s.Provider()] = s
	}
	return m
}

// Providers lists the providers this manager can import from
func (m *Manager) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(m.sessions))
	for _, p := range models.AllProviders {
		if _, ok := m.sessions[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Active returns the provider with the live session, if any
func (m *Manager) Active() (models.Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != ""
}

// Open activates provider, resetting all other sessions first
func (m *Manager) Open(ctx context.Context, provider models.Provider, raw clients.RawCredentials, merchantID string) (Snapshot, error) {
	session, err := m.session(provider)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	for p, other := range m.sessions {
		if p != provider {
			other.Cancel()
		}
	}
	m.active = provider
	m.mu.Unlock()

	return session.Open(ctx, raw, merchantID)
}

// Advance moves the provider's session to its next step
func (m *Manager) Advance(ctx context.Context, provider models.Provider) (Snapshot, error) {
	session, err := m.session(provider)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := session.Advance(ctx)
	if err == nil && snap.Store != nil {
		m.clearActive(provider)
	}
	return snap, err
}

// LoadMore fetches the next product page of the provider's session
func (m *Manager) LoadMore(ctx context.Context, provider models.Provider) (Snapshot, error) {
	session, err := m.session(provider)
	if err != nil {
		return Snapshot{}, err
	}
	return session.LoadMore(ctx)
}

// Cancel resets the provider's session
func (m *Manager) Cancel(provider models.Provider) error {
	session, err := m.session(provider)
	if err != nil {
		return err
	}
	session.Cancel()
	m.clearActive(provider)
	return nil
}

// Snapshot returns the provider's session state
func (m *Manager) Snapshot(provider models.Provider) (Snapshot, error) {
	session, err := m.session(provider)
	if err != nil {
		return Snapshot{}, err
	}
	return session.Snapshot(), nil
}

func (m *Manager) session(provider models.Provider) (Session, error) {
	session, ok := m.sessions[provider]
	if !ok {
		return nil, &clients.UnsupportedProviderError{Provider: string(provider)}
	}
	return session, nil
}

func (m *Manager) clearActive(provider models.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == provider {
		m.active = ""
	}
}
