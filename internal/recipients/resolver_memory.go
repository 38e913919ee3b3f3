package recipients

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Contact is a stored contact row.
type Contact struct {
	ID           string
	UserID       string
	Phone        string
	Email        string
	Unsubscribed bool
}

// MemoryResolver is an in-process Resolver for tests and the local profile.
type MemoryResolver struct {
	mu       sync.RWMutex
	contacts map[string]Contact
	// groups: group id -> owner and member contact ids.
	groups map[string]memoryGroup
}

type memoryGroup struct {
	userID  string
	members []string
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{contacts: map[string]Contact{}, groups: map[string]memoryGroup{}}
}

func (r *MemoryResolver) PutContact(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.ID] = c
}

func (r *MemoryResolver) PutGroup(groupID, userID string, memberIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[groupID] = memoryGroup{userID: userID, members: append([]string(nil), memberIDs...)}
}

func (r *MemoryResolver) Resolve(_ context.Context, userID string, groupIDs, contactIDs []string) (Set, error) {
	if userID == "" {
		return Set{}, ErrInvalidArgument
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := map[string]struct{}{}
	for _, id := range cleanIDs(contactIDs) {
		ids[id] = struct{}{}
	}
	for _, gid := range cleanIDs(groupIDs) {
		g, ok := r.groups[gid]
		if !ok || g.userID != userID {
			continue
		}
		for _, id := range g.members {
			ids[id] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var out Set
	for _, id := range sorted {
		c, ok := r.contacts[id]
		if !ok || c.UserID != userID || c.Unsubscribed {
			continue
		}
		if p := strings.TrimSpace(c.Phone); p != "" {
			out.SMS = append(out.SMS, p)
		}
		if e := strings.TrimSpace(c.Email); e != "" {
			out.Email = append(out.Email, strings.ToLower(e))
		}
	}
	out.SMS = Dedupe(out.SMS)
	out.Email = Dedupe(out.Email)
	return out, nil
}
