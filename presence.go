package phxclient

import (
	"sort"
	"sync"
)

// phxRefKey identifies one connected instance of a peer inside a meta entry.
const phxRefKey = "phx_ref"

// Meta describes one connected instance of a peer.
type Meta map[string]interface{}

// PresenceState maps a peer id to its meta entries. An id is present only
// while it has at least one entry.
type PresenceState map[string][]Meta

// PresenceCallback is invoked once per joined or left meta entry.
type PresenceCallback func(id string, meta Meta)

// Presence tracks who is connected to a channel's topic.
type Presence struct {
	mu    sync.RWMutex
	state PresenceState

	onJoin        PresenceCallback
	onLeave       PresenceCallback
	onStateChange func(PresenceState)
}

// NewPresence creates an empty tracker.
func NewPresence() *Presence {
	return &Presence{state: PresenceState{}}
}

// OnJoin sets the callback fired for every meta entry added by a diff.
func (p *Presence) OnJoin(cb PresenceCallback) {
	p.mu.Lock()
	p.onJoin = cb
	p.mu.Unlock()
}

// OnLeave sets the callback fired for every meta entry listed in a leave diff.
func (p *Presence) OnLeave(cb PresenceCallback) {
	p.mu.Lock()
	p.onLeave = cb
	p.mu.Unlock()
}

// OnStateChange sets the callback fired after every sync.
func (p *Presence) OnStateChange(cb func(PresenceState)) {
	p.mu.Lock()
	p.onStateChange = cb
	p.mu.Unlock()
}

// Sync applies a presence_state snapshot or a presence_diff. Other events
// leave the state untouched.
func (p *Presence) Sync(msg *Message) {
	switch msg.Event {
	case EventPresenceState:
		p.syncState(msg.Payload)
	case EventPresenceDiff:
		if leaves, ok := msg.Payload.Map("leaves"); ok {
			p.syncLeaves(leaves)
		}
		if joins, ok := msg.Payload.Map("joins"); ok {
			p.syncJoins(joins)
		}
	default:
		return
	}

	p.mu.RLock()
	cb := p.onStateChange
	p.mu.RUnlock()
	if cb != nil {
		cb(p.State())
	}
}

// syncState replaces the entries of every id in the snapshot.
func (p *Presence) syncState(snapshot Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, entry := range snapshot {
		metas, ok := entryMetas(entry)
		if !ok {
			continue
		}
		if len(metas) == 0 {
			delete(p.state, id)
			continue
		}
		p.state[id] = metas
	}
}

func (p *Presence) syncLeaves(diff Payload) {
	p.mu.Lock()
	for id, entry := range diff {
		existing, tracked := p.state[id]
		if !tracked {
			continue
		}

		if len(existing) == 1 {
			delete(p.state, id)
			continue
		}

		metas, ok := entryMetas(entry)
		if !ok {
			continue
		}
		refs := make(map[string]struct{}, len(metas))
		for _, meta := range metas {
			if ref, ok := meta[phxRefKey].(string); ok {
				refs[ref] = struct{}{}
			}
		}

		kept := existing[:0:0]
		for _, meta := range existing {
			if ref, ok := meta[phxRefKey].(string); ok {
				if _, gone := refs[ref]; gone {
					continue
				}
			}
			kept = append(kept, meta)
		}
		if len(kept) == 0 {
			delete(p.state, id)
		} else {
			p.state[id] = kept
		}
	}
	cb := p.onLeave
	p.mu.Unlock()

	// Leave notifications come from the diff itself, tracked or not.
	if cb == nil {
		return
	}
	for _, id := range sortedKeys(diff) {
		metas, _ := entryMetas(diff[id])
		for _, meta := range metas {
			cb(id, meta)
		}
	}
}

func (p *Presence) syncJoins(diff Payload) {
	type joined struct {
		id    string
		metas []Meta
	}
	var added []joined

	p.mu.Lock()
	for _, id := range sortedKeys(diff) {
		metas, ok := entryMetas(diff[id])
		if !ok || len(metas) == 0 {
			continue
		}
		p.state[id] = append(p.state[id], metas...)
		added = append(added, joined{id: id, metas: metas})
	}
	cb := p.onJoin
	p.mu.Unlock()

	if cb == nil {
		return
	}
	for _, j := range added {
		for _, meta := range j.metas {
			cb(j.id, meta)
		}
	}
}

// entryMetas extracts the "metas" list of a {"metas": [...]} entry. Entries
// that are not objects are skipped.
func entryMetas(entry interface{}) ([]Meta, bool) {
	obj, ok := asPayload(entry)
	if !ok {
		return nil, false
	}
	list, ok := obj.Slice("metas")
	if !ok {
		return nil, false
	}
	metas := make([]Meta, 0, len(list))
	for _, item := range list {
		switch m := item.(type) {
		case Meta:
			metas = append(metas, m)
		case map[string]interface{}:
			metas = append(metas, Meta(m))
		case Payload:
			metas = append(metas, Meta(m))
		}
	}
	return metas, true
}

func sortedKeys(p Payload) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// State returns a copy of the current state. Meta maps are shared, the
// lists are not.
func (p *Presence) State() PresenceState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(PresenceState, len(p.state))
	for id, metas := range p.state {
		out[id] = append([]Meta(nil), metas...)
	}
	return out
}

// Len returns the number of tracked ids.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.state)
}

// IDs returns the tracked ids in sorted order.
func (p *Presence) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.state))
	for id := range p.state {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Metas returns the entries for id.
func (p *Presence) Metas(id string) ([]Meta, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metas, ok := p.state[id]
	if !ok {
		return nil, false
	}
	return append([]Meta(nil), metas...), true
}

// FirstMeta returns the oldest entry for id.
func (p *Presence) FirstMeta(id string) (Meta, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metas := p.state[id]
	if len(metas) == 0 {
		return nil, false
	}
	return metas[0], true
}

// FirstMetas returns the oldest entry of every tracked id.
func (p *Presence) FirstMetas() map[string]Meta {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Meta, len(p.state))
	for id, metas := range p.state {
		out[id] = metas[0]
	}
	return out
}

// FirstMetaValue returns key from the oldest entry for id.
func (p *Presence) FirstMetaValue(id, key string) (interface{}, bool) {
	meta, ok := p.FirstMeta(id)
	if !ok {
		return nil, false
	}
	v, ok := meta[key]
	return v, ok
}

// FirstMetaValues returns key from the oldest entry of every id that has
// it, ordered by id.
func (p *Presence) FirstMetaValues(key string) []interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.state))
	for id := range p.state {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var values []interface{}
	for _, id := range ids {
		if v, ok := p.state[id][0][key]; ok {
			values = append(values, v)
		}
	}
	return values
}

// MetaValue is a typed variant of FirstMetaValue.
func MetaValue[T any](p *Presence, id, key string) (T, bool) {
	var zero T
	v, ok := p.FirstMetaValue(id, key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
