package protocol

import "sync"

// Directory maps a user identity to its reachable endpoint, built up by
// introduce_user gossip. It is an injected collaborator, never a global.
type Directory struct {
	mu         sync.RWMutex
	candidates map[string]Candidate
}

func NewDirectory() *Directory {
	return &Directory{candidates: make(map[string]Candidate)}
}

// Register records the endpoint for a user id. Re-registering the same
// mapping is idempotent; a changed address overwrites the old one.
func (d *Directory) Register(userID string, c Candidate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.candidates[userID] = c
}

// Resolve returns the endpoint for a user id.
func (d *Directory) Resolve(userID string) (Candidate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.candidates[userID]
	return c, ok
}

// ResolveAll returns endpoints for every id that has one; unknown ids are
// skipped.
func (d *Directory) ResolveAll(userIDs []string) []Candidate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Candidate, 0, len(userIDs))
	for _, id := range userIDs {
		if c, ok := d.candidates[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.candidates)
}
