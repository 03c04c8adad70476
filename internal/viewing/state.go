package viewing

import (
	"sync"

	"github.com/google/uuid"
	"github.com/manga-lockstep/backend/internal/catalog"
	"github.com/rs/zerolog/log"
)

// ViewerID identifies one live connection. It is minted on Register and
// never reused.
type ViewerID = uuid.UUID

// FrameKind distinguishes the frames a viewer's outbox carries.
type FrameKind int

const (
	FrameSnapshot FrameKind = iota
	FramePing
)

// Frame is one queued outbound message. Snapshot is set for FrameSnapshot.
type Frame struct {
	Kind     FrameKind
	Snapshot Snapshot
}

// Outbox is a viewer's private outbound queue. Enqueue is called while the
// state lock is held and must never block; it reports false when the frame
// could not be queued.
type Outbox interface {
	Enqueue(Frame) bool
}

// Outcome describes the effect of a single CastVote call.
type Outcome struct {
	Accepted bool   // the viewer was registered and its vote recorded
	Agreed   Vote   // the unanimous direction, VoteNone if the round is still open
	Moved    bool   // the cursor changed position
	Cursor   Cursor // position after the call
}

type viewer struct {
	out  Outbox
	vote Vote
}

// State is the single authority over the cursor, the viewer registry and the
// per-viewer votes. Every mutation happens under mu; fan-out to outboxes also
// happens under mu so all viewers see navigations in the same order.
type State struct {
	mu         sync.RWMutex
	collection *catalog.Collection
	cursor     Cursor
	viewers    map[ViewerID]*viewer
	moves      uint64
}

func NewState(col *catalog.Collection) *State {
	return &State{
		collection: col,
		viewers:    make(map[ViewerID]*viewer),
	}
}

// Collection returns the read-only collection the state navigates.
func (s *State) Collection() *catalog.Collection {
	return s.collection
}

// Register adds a viewer with no vote and clears everyone else's vote. The
// returned snapshot is read under the same lock, so any later broadcast the
// viewer receives is at least as new as it.
func (s *State) Register(out Outbox) (ViewerID, Snapshot) {
	id := uuid.New()

	s.mu.Lock()
	s.clearVotesLocked()
	s.viewers[id] = &viewer{out: out}
	snap := Project(s.collection, s.cursor)
	count := len(s.viewers)
	s.mu.Unlock()

	log.Info().
		Str("viewer", id.String()).
		Int("viewers", count).
		Msg("viewer registered")

	return id, snap
}

// Unregister removes a viewer and clears every remaining vote. Consensus is
// not re-evaluated against the smaller viewer set.
func (s *State) Unregister(id ViewerID) bool {
	s.mu.Lock()
	if _, ok := s.viewers[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.viewers, id)
	s.clearVotesLocked()
	count := len(s.viewers)
	s.mu.Unlock()

	log.Info().
		Str("viewer", id.String()).
		Int("viewers", count).
		Msg("viewer unregistered")
	return true
}

// CastVote records a vote for a registered viewer and advances the cursor if
// the round is now unanimous. Votes from unknown viewers are ignored.
func (s *State) CastVote(id ViewerID, v Vote) Outcome {
	s.mu.Lock()
	vw, ok := s.viewers[id]
	if !ok {
		cur := s.cursor
		s.mu.Unlock()
		return Outcome{Cursor: cur}
	}
	vw.vote = v
	out := s.tryAdvanceLocked()
	s.mu.Unlock()

	out.Accepted = true
	if out.Agreed != VoteNone {
		log.Debug().
			Str("direction", out.Agreed.String()).
			Int("item", out.Cursor.Item).
			Int("page", out.Cursor.Page).
			Bool("moved", out.Moved).
			Msg("consensus reached")
	}
	return out
}

// tryAdvanceLocked applies the agreed step, clears the round and broadcasts a
// fresh snapshot. A step at either end of the collection is still an accepted
// round. Caller must hold s.mu for writing.
func (s *State) tryAdvanceLocked() Outcome {
	votes := make([]Vote, 0, len(s.viewers))
	for _, vw := range s.viewers {
		votes = append(votes, vw.vote)
	}

	agreed, ok := Consensus(votes)
	if !ok {
		return Outcome{Cursor: s.cursor}
	}

	prev := s.cursor
	s.cursor = s.cursor.Step(s.collection, agreed)
	s.moves++
	s.clearVotesLocked()

	snap := Project(s.collection, s.cursor)
	s.broadcastLocked(Frame{Kind: FrameSnapshot, Snapshot: snap})

	return Outcome{Agreed: agreed, Moved: prev != s.cursor, Cursor: s.cursor}
}

func (s *State) clearVotesLocked() {
	for _, vw := range s.viewers {
		vw.vote = VoteNone
	}
}

// broadcastLocked queues f for every viewer. Delivery failures are left to
// the owning session to detect. Caller must hold s.mu.
func (s *State) broadcastLocked(f Frame) int {
	delivered := 0
	for _, vw := range s.viewers {
		if vw.out.Enqueue(f) {
			delivered++
		}
	}
	return delivered
}

// Ping queues a liveness frame for every registered viewer and returns how
// many accepted it.
func (s *State) Ping() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broadcastLocked(Frame{Kind: FramePing})
}

// Snapshot projects the current cursor.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Project(s.collection, s.cursor)
}

func (s *State) Cursor() Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

func (s *State) ViewerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.viewers)
}

// Vote returns the pending vote of a viewer.
func (s *State) Vote(id ViewerID) (Vote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vw, ok := s.viewers[id]
	if !ok {
		return VoteNone, false
	}
	return vw.vote, true
}

// Stats is a point-in-time summary used by the status endpoint.
type Stats struct {
	Viewers  int      `json:"viewers"`
	Pending  int      `json:"pending_votes"`
	Moves    uint64   `json:"moves"`
	Cursor   Cursor   `json:"cursor"`
	Snapshot Snapshot `json:"snapshot"`
}

func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := 0
	for _, vw := range s.viewers {
		if vw.vote != VoteNone {
			pending++
		}
	}
	return Stats{
		Viewers:  len(s.viewers),
		Pending:  pending,
		Moves:    s.moves,
		Cursor:   s.cursor,
		Snapshot: Project(s.collection, s.cursor),
	}
}
