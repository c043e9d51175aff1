// Package session binds live connections to identities and enforces one
// active connection per identity.
package session

import "sync"

// Registry is the bidirectional connection <-> identity map. It is safe for
// concurrent use; every mutation of both directions happens under one lock so
// two concurrent binds for the same identity cannot both win.
type Registry struct {
	mu           sync.RWMutex
	byConnection map[string]string // connection id -> identity
	byIdentity   map[string]string // identity -> connection id
}

func NewRegistry() *Registry {
	return &Registry{
		byConnection: make(map[string]string),
		byIdentity:   make(map[string]string),
	}
}

// BindResult reports the connection, if any, that lost its identity to the
// new binding. The caller must close it.
type BindResult struct {
	Evicted string
}

func (r BindResult) HasEviction() bool { return r.Evicted != "" }

// Bind attaches identity to connectionID. Re-binding the same pair is a no-op.
// A connection already bound to a different identity is rebound. A different
// connection holding identity is unbound and returned as evicted.
func (r *Registry) Bind(connectionID, identity string) BindResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.byConnection[connectionID]; ok {
		if current == identity {
			return BindResult{}
		}
		delete(r.byIdentity, current)
	}

	var res BindResult
	if prior, ok := r.byIdentity[identity]; ok && prior != connectionID {
		delete(r.byConnection, prior)
		res.Evicted = prior
	}

	r.byConnection[connectionID] = identity
	r.byIdentity[identity] = connectionID
	return res
}

// Unbind drops both directions for connectionID and returns the identity it
// held. Unknown connections are a no-op.
func (r *Registry) Unbind(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byConnection[connectionID]
	if !ok {
		return "", false
	}
	delete(r.byConnection, connectionID)
	if r.byIdentity[identity] == connectionID {
		delete(r.byIdentity, identity)
	}
	return identity, true
}

func (r *Registry) IdentityOf(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.byConnection[connectionID]
	return identity, ok
}

func (r *Registry) ConnectionOf(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byIdentity[identity]
	return conn, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConnection)
}
