// README: Process-local registry of live connections, sharded by group name.
package realtime

import (
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"flashfood/internal/metrics"
)

const registryShards = 16

var (
	ErrClosed     = errors.New("realtime: connection closed")
	ErrBufferFull = errors.New("realtime: send buffer full")
)

// Handle is one live connection. Send must not block.
type Handle interface {
	ID() string
	Send(Envelope) error
	Close()
}

type shard struct {
	mu      sync.RWMutex
	members map[string]map[string]Handle
}

type membership struct {
	identity Identity
	groups   map[string]struct{}
}

// Registry maps identities and groups to handles. Identity sets live under an
// "id:" key and rooms under "group:" so a room named like an identity group
// never changes who is online. Shard sets only change while mu is held, so a
// handle is never added to a set after it was unregistered.
type Registry struct {
	shards [registryShards]*shard

	mu      sync.Mutex
	handles map[string]*membership

	log *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{handles: make(map[string]*membership), log: log}
	for i := range r.shards {
		r.shards[i] = &shard{members: make(map[string]map[string]Handle)}
	}
	return r
}

func identityKey(id Identity) string { return "id:" + id.Group() }
func groupKey(group string) string   { return "group:" + group }

func (r *Registry) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return r.shards[h.Sum32()%registryShards]
}

func (r *Registry) add(key string, h Handle) {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[key]
	if !ok {
		set = make(map[string]Handle)
		s.members[key] = set
	}
	set[h.ID()] = h
}

// remove reports whether the key has no handles left.
func (r *Registry) remove(key string, h Handle) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[key]
	if !ok {
		return true
	}
	delete(set, h.ID())
	if len(set) == 0 {
		delete(s.members, key)
		return true
	}
	return false
}

func (r *Registry) snapshot(key string) []Handle {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.members[key]
	out := make([]Handle, 0, len(set))
	for _, h := range set {
		out = append(out, h)
	}
	return out
}

// Register adds h under identity. Registering the same handle twice is a no-op.
func (r *Registry) Register(identity Identity, h Handle) {
	r.mu.Lock()
	if _, ok := r.handles[h.ID()]; ok {
		r.mu.Unlock()
		return
	}
	r.handles[h.ID()] = &membership{identity: identity, groups: make(map[string]struct{})}
	r.add(identityKey(identity), h)
	r.mu.Unlock()

	metrics.Connections.Inc()
	r.log.Debug("connection registered", zap.String("identity", identity.String()), zap.String("handle", h.ID()))
}

// Unregister removes h from its identity and every group it joined and
// reports whether the identity has no connections left.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	m, ok := r.handles[h.ID()]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.handles, h.ID())
	for g := range m.groups {
		r.remove(groupKey(g), h)
	}
	offline := r.remove(identityKey(m.identity), h)
	r.mu.Unlock()

	metrics.Connections.Dec()
	if offline {
		r.log.Info("party offline", zap.String("identity", m.identity.String()))
	}
	return offline
}

// JoinGroup puts every current handle of identity into group.
func (r *Registry) JoinGroup(identity Identity, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.snapshot(identityKey(identity)) {
		m, ok := r.handles[h.ID()]
		if !ok {
			continue
		}
		m.groups[group] = struct{}{}
		r.add(groupKey(group), h)
	}
}

// EmitToGroup returns how many handles accepted the envelope.
func (r *Registry) EmitToGroup(group string, env Envelope) int {
	return r.emit(r.snapshot(groupKey(group)), env)
}

func (r *Registry) EmitToIdentity(identity Identity, env Envelope) int {
	return r.emit(r.snapshot(identityKey(identity)), env)
}

func (r *Registry) Online(identity Identity) bool {
	return len(r.snapshot(identityKey(identity))) > 0
}

func (r *Registry) emit(handles []Handle, env Envelope) int {
	sent := 0
	for _, h := range handles {
		if err := h.Send(env); err != nil {
			metrics.DroppedTotal.Inc()
			r.log.Debug("realtime send dropped",
				zap.String("handle", h.ID()),
				zap.String("event", env.Event),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}
