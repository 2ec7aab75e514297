package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrNotFound = errors.New("response session not found")
	ErrRetired  = errors.New("response session retired")
)

const defaultTombstones = 512

// Manager owns the current response session and remembers recently retired
// response ids so late observations for them are refused.
type Manager struct {
	mu                sync.Mutex
	current           *ResponseSession
	retired           *lru.Cache[string, time.Time]
	inactivityTimeout time.Duration
	onExpire          func(id string)
}

func NewManager(inactivityTimeout time.Duration, tombstones int) (*Manager, error) {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 45 * time.Second
	}
	if tombstones <= 0 {
		tombstones = defaultTombstones
	}
	cache, err := lru.New[string, time.Time](tombstones)
	if err != nil {
		return nil, fmt.Errorf("retired session cache: %w", err)
	}
	return &Manager{
		retired:           cache,
		inactivityTimeout: inactivityTimeout,
	}, nil
}

// SetExpireHook registers the callback run by the janitor for a streaming
// session that has gone quiet.
func (m *Manager) SetExpireHook(hook func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Begin makes id the current session. An empty id gets a fresh uuid. The
// previous current session, if any, is retired.
func (m *Manager) Begin(id string) (*ResponseSession, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retired.Contains(id) {
		return nil, ErrRetired
	}
	if m.current != nil && m.current.ID == id {
		return m.current, nil
	}
	if m.current != nil {
		m.retireLocked(m.current)
	}

	now := time.Now().UTC()
	m.current = &ResponseSession{
		ID:             id,
		CreatedAt:      now,
		IsStreaming:    true,
		LastObservedAt: now,
	}
	return m.current, nil
}

// Current returns the live session, or nil when there is none.
func (m *Manager) Current() *ResponseSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.Retired {
		return nil
	}
	return m.current
}

// Lookup resolves id to the live session. An empty id means the current one.
func (m *Manager) Lookup(id string) (*ResponseSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "" && m.retired.Contains(id) {
		return nil, ErrRetired
	}
	if m.current == nil {
		return nil, ErrNotFound
	}
	if id != "" && m.current.ID != id {
		return nil, ErrNotFound
	}
	if m.current.Retired {
		return nil, ErrRetired
	}
	return m.current, nil
}

// Touch records an observation for id.
func (m *Manager) Touch(id string, streaming bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retired.Contains(id) {
		return ErrRetired
	}
	if m.current == nil || m.current.ID != id {
		return ErrNotFound
	}
	m.current.IsStreaming = streaming
	m.current.LastObservedAt = time.Now().UTC()
	return nil
}

// Retire marks id as finished. Retiring an unknown id still records the
// tombstone.
func (m *Manager) Retire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ID == id {
		m.retireLocked(m.current)
		return
	}
	m.retired.Add(id, time.Now().UTC())
}

func (m *Manager) IsRetired(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retired.Contains(id)
}

func (m *Manager) RetiredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retired.Len()
}

// Info returns the lifecycle view of the current session.
func (m *Manager) Info() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Info{}, false
	}
	s := m.current
	return Info{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		IsStreaming:    s.IsStreaming,
		Retired:        s.Retired,
		LastObservedAt: s.LastObservedAt,
	}, true
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()

	m.mu.Lock()
	s := m.current
	if s == nil || s.Retired || !s.IsStreaming || now.Sub(s.LastObservedAt) < m.inactivityTimeout {
		m.mu.Unlock()
		return
	}
	// Fire once: the hook finalizes and retires the session.
	s.IsStreaming = false
	id := s.ID
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		hook(id)
	}
}

func (m *Manager) retireLocked(s *ResponseSession) {
	s.Retired = true
	s.IsStreaming = false
	m.retired.Add(s.ID, time.Now().UTC())
}
