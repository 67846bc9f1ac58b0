package lock

import "github.com/google/uuid"

// Identity names the holder of a lock reference. It replaces the source
// system's thread-name-plus-weak-reference model: callers supply an opaque
// name and a human-readable label, and the coordinator never inspects
// either beyond using Name as a map key.
type Identity struct {
	// Name is the owner key. Two acquisitions with the same Name on the
	// same path are treated as the same holder (idempotent re-lock).
	Name string

	// Label is a human-readable description shown in diagnostics
	// (getLockInfo); it has no semantic effect on admission.
	Label string
}

// NewIdentity returns an Identity with a generated, process-unique Name.
// Callers that don't care about a stable owner identity (most one-shot
// readers) can use this instead of inventing their own naming scheme.
func NewIdentity(label string) Identity {
	return Identity{Name: "owner-" + uuid.NewString(), Label: label}
}

// OrDefault returns id unless its Name is empty, in which case it returns a
// freshly generated identity carrying id's Label. Callers that need to
// know the resolved name (e.g. to release the same reference later)
// should call this themselves rather than relying on Owner to default it
// internally.
func (id Identity) OrDefault() Identity {
	if id.Name != "" {
		return id
	}
	return NewIdentity(id.Label)
}
