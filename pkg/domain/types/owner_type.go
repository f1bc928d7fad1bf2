package types

import "fmt"

// OwnerType tags the entity kind a vector record belongs to. Memories, cases
// and rules share one vector store and are namespaced by this tag.
type OwnerType string

const (
	OwnerTypeMemory OwnerType = "memory"
	OwnerTypeCase   OwnerType = "case"
	OwnerTypeRule   OwnerType = "rule"
)

// AllOwnerTypes returns all valid owner types
func AllOwnerTypes() []OwnerType {
	return []OwnerType{
		OwnerTypeMemory,
		OwnerTypeCase,
		OwnerTypeRule,
	}
}

// IsValid checks if the owner type is valid
func (o OwnerType) IsValid() bool {
	switch o {
	case OwnerTypeMemory,
		OwnerTypeCase,
		OwnerTypeRule:
		return true
	default:
		return false
	}
}

// String returns the string representation of the owner type
func (o OwnerType) String() string {
	return string(o)
}

// ParseOwnerType parses a string into an OwnerType
func ParseOwnerType(s string) (OwnerType, error) {
	o := OwnerType(s)
	if !o.IsValid() {
		return "", fmt.Errorf("invalid owner type: %s", s)
	}
	return o, nil
}
