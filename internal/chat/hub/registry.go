package hub

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % shardCount
}

// sessionRegistry is a sharded concurrent map from connection id to
// Session. Sharding replaces the single global lock the teacher's hub
// used around its `clients map[*Client]bool`, per the per-entry
// critical section policy.
type sessionRegistry struct {
	shards [shardCount]struct {
		mu   sync.RWMutex
		byID map[string]*Session
	}
}

func newSessionRegistry() *sessionRegistry {
	r := &sessionRegistry{}
	for i := range r.shards {
		r.shards[i].byID = make(map[string]*Session)
	}
	return r
}

func (r *sessionRegistry) put(s *Session) {
	shard := &r.shards[shardIndex(s.ID)]
	shard.mu.Lock()
	shard.byID[s.ID] = s
	shard.mu.Unlock()
}

func (r *sessionRegistry) remove(id string) {
	shard := &r.shards[shardIndex(id)]
	shard.mu.Lock()
	delete(shard.byID, id)
	shard.mu.Unlock()
}

func (r *sessionRegistry) count() int {
	n := 0
	for i := range r.shards {
		r.shards[i].mu.RLock()
		n += len(r.shards[i].byID)
		r.shards[i].mu.RUnlock()
	}
	return n
}

// userIndex maps a user id to the set of their live sessions (a user
// may have more than one open tab/device).
type userIndex struct {
	shards [shardCount]struct {
		mu       sync.RWMutex
		sessions map[int64]map[string]*Session
	}
}

func newUserIndex() *userIndex {
	idx := &userIndex{}
	for i := range idx.shards {
		idx.shards[i].sessions = make(map[int64]map[string]*Session)
	}
	return idx
}

func (idx *userIndex) shardFor(userID int64) *struct {
	mu       sync.RWMutex
	sessions map[int64]map[string]*Session
} {
	return &idx.shards[int(userID)%shardCount]
}

func (idx *userIndex) add(s *Session) {
	shard := idx.shardFor(s.UserID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	set, ok := shard.sessions[s.UserID]
	if !ok {
		set = make(map[string]*Session)
		shard.sessions[s.UserID] = set
	}
	set[s.ID] = s
}

func (idx *userIndex) remove(s *Session) {
	shard := idx.shardFor(s.UserID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if set, ok := shard.sessions[s.UserID]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(shard.sessions, s.UserID)
		}
	}
}

func (idx *userIndex) sessionsFor(userID int64) []*Session {
	shard := idx.shardFor(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	set := shard.sessions[userID]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// hasSession reports whether userID has at least one live session.
func (idx *userIndex) hasSession(userID int64) bool {
	shard := idx.shardFor(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.sessions[userID]) > 0
}

// Room is a named broadcast group. Membership is a lock-free map keyed
// by session id so fan-out never blocks on a single room-wide mutex.
type Room struct {
	Name    string
	members sync.Map // sessionID string -> *Session
}

func (r *Room) join(s *Session)  { r.members.Store(s.ID, s) }
func (r *Room) leave(s *Session) { r.members.Delete(s.ID) }

func (r *Room) each(fn func(*Session)) {
	r.members.Range(func(_, v any) bool {
		fn(v.(*Session))
		return true
	})
}

// roomRegistry is a sharded concurrent map from room name to *Room.
type roomRegistry struct {
	shards [shardCount]struct {
		mu   sync.RWMutex
		byName map[string]*Room
	}
}

func newRoomRegistry() *roomRegistry {
	r := &roomRegistry{}
	for i := range r.shards {
		r.shards[i].byName = make(map[string]*Room)
	}
	return r
}

func (r *roomRegistry) get(name string) (*Room, bool) {
	shard := &r.shards[shardIndex(name)]
	shard.mu.RLock()
	room, ok := shard.byName[name]
	shard.mu.RUnlock()
	return room, ok
}

// getOrCreate returns the room, creating it if absent. Room *existence*
// in the model is driven by persistent membership/config, but the
// hub's live registry lazily materializes a Room object on first join.
func (r *roomRegistry) getOrCreate(name string) *Room {
	shard := &r.shards[shardIndex(name)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	room, ok := shard.byName[name]
	if !ok {
		room = &Room{Name: name}
		shard.byName[name] = room
	}
	return room
}
