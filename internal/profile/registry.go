package profile

import (
	"errors"
	"sort"
	"sync"
)

var ErrNotPrivileged = errors.New("operator is not privileged")

// Registry owns all profiles, keyed by operator id, plus the privileged
// operator set. Profiles are created lazily on first reference and live for
// the process lifetime unless the operator is de-privileged. There is no
// ambient global state: every access goes through Registry operations.
type Registry struct {
	ownerID int64

	mu         sync.Mutex
	profiles   map[int64]*Profile
	privileged map[int64]struct{}
}

// NewRegistry creates a registry rooted at the given owner operator.
// The owner is always allowed and cannot be de-privileged.
func NewRegistry(ownerID int64) *Registry {
	return &Registry{
		ownerID:    ownerID,
		profiles:   make(map[int64]*Profile),
		privileged: make(map[int64]struct{}),
	}
}

// OwnerID returns the root operator id.
func (r *Registry) OwnerID() int64 { return r.ownerID }

// Get returns the profile for an operator, creating it on first reference.
func (r *Registry) Get(operatorID int64) *Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[operatorID]
	if !ok {
		p = NewProfile(operatorID)
		r.profiles[operatorID] = p
	}
	return p
}

// IsOwner reports whether the operator is the root owner.
func (r *Registry) IsOwner(operatorID int64) bool {
	return operatorID == r.ownerID
}

// IsAllowed reports whether the operator may use the orchestrator.
func (r *Registry) IsAllowed(operatorID int64) bool {
	if operatorID == r.ownerID {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.privileged[operatorID]
	return ok
}

// Promote grants an operator access and eagerly creates their profile.
func (r *Registry) Promote(operatorID int64) *Profile {
	r.mu.Lock()
	r.privileged[operatorID] = struct{}{}
	r.mu.Unlock()
	return r.Get(operatorID)
}

// Demote revokes access and drops the operator's profile from the registry.
// The removed profile is returned so the caller can tear down its sessions
// and broadcast tasks; ErrNotPrivileged when the operator was not granted.
func (r *Registry) Demote(operatorID int64) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.privileged[operatorID]; !ok {
		return nil, ErrNotPrivileged
	}
	delete(r.privileged, operatorID)
	p := r.profiles[operatorID]
	delete(r.profiles, operatorID)
	return p, nil
}

// Privileged returns the sorted list of privileged operator ids.
func (r *Registry) Privileged() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.privileged))
	for id := range r.privileged {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns a snapshot of every live profile. Used for shutdown teardown.
func (r *Registry) All() []*Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}
