package types

import (
	"fmt"
	"strings"
)

// MemoryKind distinguishes raw observations from derived reflections
type MemoryKind string

const (
	// MemoryKindObservation is raw input, e.g. a customer utterance
	MemoryKindObservation MemoryKind = "observation"
	// MemoryKindReflection is a derived insight, e.g. a synthesized advisor point
	MemoryKindReflection MemoryKind = "reflection"
)

// AllMemoryKinds returns all valid memory kinds
func AllMemoryKinds() []MemoryKind {
	return []MemoryKind{
		MemoryKindObservation,
		MemoryKindReflection,
	}
}

// IsValid checks if the memory kind is valid
func (k MemoryKind) IsValid() bool {
	switch k {
	case MemoryKindObservation,
		MemoryKindReflection:
		return true
	default:
		return false
	}
}

// String returns the string representation of the memory kind
func (k MemoryKind) String() string {
	return string(k)
}

// ParseMemoryKind parses a string into a MemoryKind. Matching is case-insensitive.
func ParseMemoryKind(s string) (MemoryKind, error) {
	k := MemoryKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("invalid memory kind: %s", s)
	}
	return k, nil
}
