package quota

import (
	"fmt"
	"strings"
)

// Kind is a closed enumeration of AI-backed features that carry their own quota.
type Kind string

const (
	KindChat     Kind = "chat"
	KindRoleplay Kind = "roleplay"
	KindJournal  Kind = "journal"
)

// Kinds lists every known feature kind.
var Kinds = []Kind{KindChat, KindRoleplay, KindJournal}

// Valid reports whether k is one of the known feature kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindRoleplay, KindJournal:
		return true
	}
	return false
}

// ParseKind converts a path or config value into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Limits is the pair of nested budgets applied to one feature kind.
type Limits struct {
	PerMinute int `json:"per_minute"`
	PerDay    int `json:"per_day"`
}

func (l Limits) validate() error {
	if l.PerMinute < 0 || l.PerDay < 0 {
		return fmt.Errorf("%w: got %d/min, %d/day", ErrInvalidLimits, l.PerMinute, l.PerDay)
	}
	return nil
}

// DefaultLimits returns the built-in limits table. The returned map is a copy.
func DefaultLimits() map[Kind]Limits {
	return map[Kind]Limits{
		KindChat:     {PerMinute: 30, PerDay: 300},
		KindRoleplay: {PerMinute: 20, PerDay: 200},
		KindJournal:  {PerMinute: 10, PerDay: 50},
	}
}
