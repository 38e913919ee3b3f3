package recipients

import (
	"context"
	"errors"
	"strings"
)

var ErrInvalidArgument = errors.New("recipients: invalid argument")

// Set holds resolved destinations per channel.
type Set struct {
	SMS   []string `json:"sms"`
	Email []string `json:"email"`
}

func (s Set) Empty() bool { return len(s.SMS) == 0 && len(s.Email) == 0 }

// Resolver expands a user's groups and contacts into destinations.
// Only contacts owned by userID are returned; unsubscribed contacts are skipped.
type Resolver interface {
	Resolve(ctx context.Context, userID string, groupIDs, contactIDs []string) (Set, error)
}

// Dedupe drops blanks and repeats. Keys are trimmed and case-insensitive;
// the first spelling seen is kept.
func Dedupe(dests []string) []string {
	seen := make(map[string]struct{}, len(dests))
	out := make([]string, 0, len(dests))
	for _, d := range dests {
		key := strings.ToLower(strings.TrimSpace(d))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(d))
	}
	return out
}

func cleanIDs(ids []string) []string {
	return Dedupe(ids)
}
