package session

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode decides whether a session writes to the ledgers.
type Mode string

const (
	// ModeRecording skips seen profiles and records every decision.
	ModeRecording Mode = "recording"
	// ModeTrial shows the whole catalog and never writes anything.
	ModeTrial Mode = "trial"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeRecording || m == ModeTrial }

// State is where a user's paging flow stands.
type State int

const (
	// StateAbsent means the user has no session.
	StateAbsent State = iota
	// StateBrowsing means the cursor points at a profile.
	StateBrowsing
	// StateExhausted means the cursor just ran off the end; the session is gone.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateBrowsing:
		return "browsing"
	case StateExhausted:
		return "exhausted"
	default:
		return "absent"
	}
}

// ErrNothingToShow is returned by Start when the queue would be empty.
var ErrNothingToShow = errors.New("session: nothing left to show")

// View is a snapshot of the profile a user is looking at.
type View struct {
	SessionID string
	UserID    string
	ProfileID string
	// Position is 1-based.
	Position int
	Total    int
	Mode     Mode
}

type session struct {
	id     string
	queue  []string
	cursor int
	mode   Mode
}

func (s *session) view(userID string) View {
	return View{
		SessionID: s.id,
		UserID:    userID,
		ProfileID: s.queue[s.cursor],
		Position:  s.cursor + 1,
		Total:     len(s.queue),
		Mode:      s.mode,
	}
}

// Manager owns every active paging session of the process.
// Sessions live in memory only and are gone after a restart.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	rnd      *rand.Rand
	newID    func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithRand makes queue shuffles deterministic. Tests only.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) { m.rnd = r }
}

// NewManager creates an empty session table.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*session),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start builds a fresh queue for userID and replaces any previous session.
//
// Behavior:
//   - recording: catalogIDs minus the ids in seen, shuffled.
//   - trial: every catalog id, shuffled; seen is ignored.
//   - duplicate ids collapse so no profile is queued twice.
//   - an empty queue returns ErrNothingToShow and leaves the user without a session.
func (m *Manager) Start(userID string, mode Mode, catalogIDs []string, seen map[string]bool) (View, error) {
	if !mode.Valid() {
		mode = ModeRecording
	}

	queue := make([]string, 0, len(catalogIDs))
	queued := make(map[string]struct{}, len(catalogIDs))
	for _, id := range catalogIDs {
		if _, dup := queued[id]; dup {
			continue
		}
		if mode == ModeRecording && seen[id] {
			continue
		}
		queued[id] = struct{}{}
		queue = append(queue, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(queue) == 0 {
		delete(m.sessions, userID)
		return View{}, ErrNothingToShow
	}

	m.rnd.Shuffle(len(queue), func(i, j int) { queue[i], queue[j] = queue[j], queue[i] })
	s := &session{id: m.newID(), queue: queue, mode: mode}
	m.sessions[userID] = s
	return s.view(userID), nil
}

// Current returns the profile under the user's cursor.
func (m *Manager) Current(userID string) (View, State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return View{}, StateAbsent
	}
	return s.view(userID), StateBrowsing
}

// Advance moves the cursor one step. When it reaches the end the session is
// dropped and StateExhausted is returned.
//
// A non-empty sessionID must match the active session, otherwise nothing moves
// and StateAbsent is returned; this keeps a decision on an old queue from
// skipping a card in a session the user restarted meanwhile.
func (m *Manager) Advance(userID, sessionID string) (View, State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok || (sessionID != "" && s.id != sessionID) {
		return View{}, StateAbsent
	}

	s.cursor++
	if s.cursor >= len(s.queue) {
		delete(m.sessions, userID)
		return View{}, StateExhausted
	}
	return s.view(userID), StateBrowsing
}

// OnCatalogDeletion drops profileID from every queue.
//
// The cursor keeps pointing at the same upcoming profile: it shifts left when
// an earlier entry goes away and stays within [0, len]. A session whose queue
// empties, or whose cursor lands on the new end, is exhausted and removed.
// It returns the users whose sessions ended this way.
func (m *Manager) OnCatalogDeletion(profileID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ended []string
	for userID, s := range m.sessions {
		idx := indexOf(s.queue, profileID)
		if idx < 0 {
			continue
		}
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		if idx < s.cursor {
			s.cursor--
		}
		if s.cursor < 0 {
			s.cursor = 0
		}
		if s.cursor >= len(s.queue) {
			delete(m.sessions, userID)
			ended = append(ended, userID)
		}
	}
	return ended
}

// Clear drops a user's session. It reports whether one existed.
func (m *Manager) Clear(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[userID]
	delete(m.sessions, userID)
	return ok
}

// Len is the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Queue returns a copy of the user's queue. Exposed for diagnostics and tests.
func (m *Manager) Queue(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	return append([]string(nil), s.queue...)
}

func indexOf(queue []string, id string) int {
	for i, q := range queue {
		if q == id {
			return i
		}
	}
	return -1
}
