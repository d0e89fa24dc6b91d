package app

import (
	"crypto/rand"
	"sync"
	"time"

	"arena-quiz-service/internal/domain"
)

// Registry owns the table of live rooms keyed by room code. It is constructed
// once by the process entry point and shared by reference; there is no
// package-level instance.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	now   func() time.Time
}

func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

// NewRegistryWithClock allows deterministic timestamps in tests.
func NewRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		now:   now,
	}
}

const (
	codeLength  = 6
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Place creates a room around an already-fetched quiz set under a freshly
// generated collision-free code and returns it.
func (g *Registry) Place(hostConnID, hostIdentity, topic, difficulty, title string, quiz domain.QuizSet) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.generateCodeLocked()
	room := newRoom(code, hostConnID, hostIdentity, topic, difficulty, title, quiz, g.now)
	g.rooms[code] = room
	return room
}

// generateCodeLocked draws 6-character codes until one misses the live table.
// Codes are short enough that collisions are a real possibility, so they are
// checked, not assumed away.
func (g *Registry) generateCodeLocked() string {
	for {
		code := randomCode(codeLength)
		if _, taken := g.rooms[code]; !taken {
			return code
		}
	}
}

func randomCode(n int) string {
	const max = byte(255 - (256 % len(codeCharset)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		for _, b := range buf {
			if b <= max {
				out = append(out, codeCharset[int(b)%len(codeCharset)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
	return string(out)
}

// Room fetches a live room by code.
func (g *Registry) Room(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[code]
	return room, ok
}

// Delete removes a room, reporting whether it existed.
func (g *Registry) Delete(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rooms[code]; !ok {
		return false
	}
	delete(g.rooms, code)
	return true
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Summaries lists public-safe projections of every live room.
func (g *Registry) Summaries() []domain.RoomSummary {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}

// CleanupEmpty removes rooms with zero participants and returns how many went.
// Intended to run from a periodic timer, not per request.
func (g *Registry) CleanupEmpty() int {
	return g.reap(func(room *Room) bool { return room.IsEmpty() })
}

// CleanupStaleFinished removes finished rooms older than the retention window.
// Rooms idling in Waiting are deliberately not reclaimed here.
func (g *Registry) CleanupStaleFinished(retention time.Duration) int {
	cutoff := g.now().Add(-retention)
	return g.reap(func(room *Room) bool { return room.finishedBefore(cutoff) })
}

func (g *Registry) reap(stale func(*Room) bool) int {
	g.mu.RLock()
	var codes []string
	for code, room := range g.rooms {
		if stale(room) {
			codes = append(codes, code)
		}
	}
	g.mu.RUnlock()

	removed := 0
	g.mu.Lock()
	for _, code := range codes {
		if room, ok := g.rooms[code]; ok && stale(room) {
			delete(g.rooms, code)
			removed++
		}
	}
	g.mu.Unlock()
	return removed
}
