package session

import (
	"sync"
	"time"

	"easy2trade/internal/types"

	"github.com/google/uuid"
)

// State is the per-browser action history for the coin being analyzed.
// The zero value means nothing has been analyzed yet.
type State struct {
	SelectedCoin string       `json:"selected_coin"`
	LastAction   types.Action `json:"last_action"`
	StartScore   int          `json:"start_score"`
	analyzed     bool
}

// Begin returns the state for a fresh analysis of coin whose stored score is
// score. Any earlier action history is discarded.
func Begin(coin string, score int) State {
	return State{
		SelectedCoin: types.NormalizeTicker(coin),
		LastAction:   types.ActionNone,
		StartScore:   score,
		analyzed:     true,
	}
}

// Analyzed reports whether coin is the coin this state was started for.
func (s State) Analyzed(coin string) bool {
	return s.analyzed && s.SelectedCoin == types.NormalizeTicker(coin)
}

const (
	DefaultIdleTimeout = 2 * time.Hour
	DefaultMaxSessions = 10000
)

type entry struct {
	mu    sync.Mutex
	state State
	seen  time.Time
}

// Manager keeps one State per session id. It holds no other state, so the
// web layer passes each State explicitly into the operations it calls.
// Sessions idle for longer than the idle timeout are dropped, and when the
// manager is full the least recently used session makes room.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	idle    time.Duration
	max     int
	now     func() time.Time
	onEvict []func(id string)
}

func NewManager() *Manager {
	return NewBoundedManager(DefaultIdleTimeout, DefaultMaxSessions)
}

func NewBoundedManager(idle time.Duration, max int) *Manager {
	if max < 1 {
		max = 1
	}
	return &Manager{
		entries: make(map[string]*entry),
		idle:    idle,
		max:     max,
		now:     time.Now,
	}
}

// OnEvict registers fn to run with the id of every dropped session.
func (m *Manager) OnEvict(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = append(m.onEvict, fn)
}

// NewID returns a random session id suitable for a cookie value.
func (m *Manager) NewID() string {
	return uuid.New().String()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) Get(id string) State {
	e := m.lookup(id, false)
	if e == nil {
		return State{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Do runs fn with the current state of id and stores what it returns, unless
// fn fails. Calls for the same id are serialized; different ids do not wait
// for each other.
func (m *Manager) Do(id string, fn func(State) (State, error)) error {
	e := m.lookup(id, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fn(e.state)
	if err != nil {
		return err
	}
	e.state = next
	return nil
}

// lookup returns the live entry of id, creating it when create is set.
func (m *Manager) lookup(id string, create bool) *entry {
	m.mu.Lock()
	now := m.now()
	e := m.entries[id]
	if e != nil && m.expired(e, now) {
		e = nil
	}
	var evicted []string
	if e == nil && create {
		evicted = m.prune(now)
		e = &entry{}
		m.entries[id] = e
	}
	if e != nil {
		e.seen = now
	}
	hooks := m.onEvict
	m.mu.Unlock()

	for _, gone := range evicted {
		for _, fn := range hooks {
			fn(gone)
		}
	}
	return e
}

func (m *Manager) expired(e *entry, now time.Time) bool {
	return m.idle > 0 && now.Sub(e.seen) > m.idle
}

// prune drops expired sessions and, if the manager is still full, the least
// recently used ones. Callers hold m.mu.
func (m *Manager) prune(now time.Time) []string {
	var evicted []string
	for id, e := range m.entries {
		if m.expired(e, now) {
			delete(m.entries, id)
			evicted = append(evicted, id)
		}
	}
	for len(m.entries) >= m.max {
		oldest := ""
		for id, e := range m.entries {
			if oldest == "" || e.seen.Before(m.entries[oldest].seen) {
				oldest = id
			}
		}
		delete(m.entries, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}
