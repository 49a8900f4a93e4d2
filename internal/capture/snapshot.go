package capture

// Snapshotter is supplied by the integrator: given an entity instance, it
// returns a stable identity string and a canonical before-image of its
// current state. The engine holds only the opaque bytes Snapshot returns;
// it never inspects entity internals (spec.md §9 — "a small interface the
// integrator supplies" in place of the teacher's reflection-based ID
// extraction).
//
// Implementations must return a deep copy from Snapshot: the entity may be
// mutated by the caller immediately after the pre-event fires, and the
// stored image must not observe those mutations.
type Snapshotter interface {
	Identity(entity any) string
	Snapshot(entity any) ([]byte, error)
}

// FuncSnapshotter adapts two functions into a Snapshotter, for integrators
// that don't want to declare a named type.
type FuncSnapshotter struct {
	IdentityFunc func(entity any) string
	SnapshotFunc func(entity any) ([]byte, error)
}

func (f FuncSnapshotter) Identity(entity any) string { return f.IdentityFunc(entity) }

func (f FuncSnapshotter) Snapshot(entity any) ([]byte, error) { return f.SnapshotFunc(entity) }
