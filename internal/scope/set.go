// Package scope computes the set of hierarchy resources an actor may reach.
package scope

import (
	"encoding/json"
	"sort"

	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Set is a set of resource IDs with a sentinel "universal" state meaning
// unrestricted access. The zero value is the empty set.
type Set struct {
	universal bool
	ids       map[types.ID]struct{}
}

// NewSet builds a set from the given IDs.
func NewSet(ids ...types.ID) Set {
	s := Set{ids: make(map[types.ID]struct{}, len(ids))}
	for _, id := range ids {
		if !id.IsZero() {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// UniversalSet returns the unrestricted sentinel set.
func UniversalSet() Set {
	return Set{universal: true}
}

// Contains reports membership. The universal set contains everything; the
// zero ID is never a member of a bounded set.
func (s Set) Contains(id types.ID) bool {
	if s.universal {
		return true
	}
	if id.IsZero() {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// IsUniversal reports whether the set is the unrestricted sentinel.
func (s Set) IsUniversal() bool {
	return s.universal
}

// IsEmpty reports whether the set contains nothing.
func (s Set) IsEmpty() bool {
	return !s.universal && len(s.ids) == 0
}

// Len returns the number of members; 0 for the universal set.
func (s Set) Len() int {
	return len(s.ids)
}

// IDs returns the members in a stable order, for SQL filters and tests.
// Returns nil for the universal set.
func (s Set) IDs() []types.ID {
	if s.universal || len(s.ids) == 0 {
		return nil
	}
	ids := make([]types.ID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type setJSON struct {
	Universal bool       `json:"universal,omitempty"`
	IDs       []types.ID `json:"ids,omitempty"`
}

// MarshalJSON implements json.Marshaler so resolved scopes can be cached.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(setJSON{Universal: s.universal, IDs: s.IDs()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw setJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Universal {
		*s = UniversalSet()
		return nil
	}
	*s = NewSet(raw.IDs...)
	return nil
}

// Scope is an actor's reachable ID sets across all three hierarchy levels.
type Scope struct {
	Districts Set `json:"districts"`
	Blocks    Set `json:"blocks"`
	Villages  Set `json:"villages"`
}

// Empty returns a scope that reaches nothing.
func Empty() Scope {
	return Scope{Districts: NewSet(), Blocks: NewSet(), Villages: NewSet()}
}

// Universal returns the admin scope.
func Universal() Scope {
	return Scope{Districts: UniversalSet(), Blocks: UniversalSet(), Villages: UniversalSet()}
}

// IsEmpty reports whether the scope reaches nothing at any level.
func (s Scope) IsEmpty() bool {
	return s.Districts.IsEmpty() && s.Blocks.IsEmpty() && s.Villages.IsEmpty()
}
