// Package entitlement answers whether a user may spend live upstream lookups.
package entitlement

import (
	"context"
	"strings"
)

// Checker reports whether userID holds an active entitlement. An empty user
// id is never entitled and is not an error.
type Checker interface {
	HasEntitlement(ctx context.Context, userID string) (bool, error)
}

// Static is a fixed allow-list, for development and tests.
type Static struct {
	users map[string]struct{}
}

// NewStatic returns a Static checker entitling the given user ids.
func NewStatic(userIDs ...string) *Static {
	s := &Static{users: make(map[string]struct{}, len(userIDs))}
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			s.users[id] = struct{}{}
		}
	}
	return s
}

func (s *Static) HasEntitlement(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	_, ok := s.users[userID]
	return ok, nil
}
