package lock

import "sync"

// Ref is a single (name, label) reference snapshot, used by Info for
// reproducible diagnostics.
type Ref struct {
	Name  string
	Label string
}

// Owner is the per-path record of who holds a lock and at what level. It is
// the LockOwner of the data model: its level is fixed for its lifetime, and
// it tracks an insertion-ordered set of named references so diagnostics are
// reproducible. An Owner becomes terminal (and must be removed from its
// FileTree entry) the instant its reference count reaches zero.
//
// Owner is safe for concurrent use; all operations are serialized by an
// internal mutex, matching the spec's requirement that lock/unlock calls on
// a single owner are serialized against each other.
type Owner struct {
	mu    sync.Mutex
	path  string
	level Level

	order []string          // reference names, insertion order
	refs  map[string]string // name -> label

	// creator is advisory only: it names whoever first created this
	// owner, for diagnostics. It is cleared once the owner goes terminal.
	creator string
}

// New creates an Owner for path at level, admitting the first reference
// under id (defaulting id's Name if empty).
func New(path string, id Identity, level Level) *Owner {
	id = id.OrDefault()
	o := &Owner{
		path:    path,
		level:   level,
		refs:    make(map[string]string, 1),
		creator: id.Name,
	}
	o.insertLocked(id)
	return o
}

// Path returns the path this owner guards. Immutable for the owner's
// lifetime.
func (o *Owner) Path() string {
	return o.path
}

// Level returns the owner's fixed lock level.
func (o *Owner) Level() Level {
	return o.level
}

// Lock attempts to admit a new reference at requestedLevel. It returns true
// and inserts the reference iff the owner's level admits requestedLevel per
// Level.Admits. Re-locking under the same Identity.Name is idempotent and
// simply overwrites the stored label.
func (o *Owner) Lock(id Identity, requestedLevel Level) bool {
	id = id.OrDefault()

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, already := o.refs[id.Name]; !already && !o.level.Admits(requestedLevel) {
		return false
	}
	o.insertLocked(id)
	return true
}

// insertLocked records id as a reference holder. Caller must hold o.mu.
func (o *Owner) insertLocked(id Identity) {
	if _, exists := o.refs[id.Name]; !exists {
		o.order = append(o.order, id.Name)
	}
	o.refs[id.Name] = id.Label
}

// Unlock removes the reference held under name, returning true iff this was
// the last reference and the owner is now terminal. Unlocking a name that
// holds no reference is a no-op and reports the owner's current terminal
// state.
func (o *Owner) Unlock(name string) (nowTerminal bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.refs[name]; ok {
		delete(o.refs, name)
		for i, n := range o.order {
			if n == name {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}

	terminal := len(o.refs) == 0
	if terminal {
		o.creator = ""
	}
	return terminal
}

// RefCount returns the current number of live references.
func (o *Owner) RefCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.refs)
}

// Info is a diagnostic snapshot of an Owner's state.
type Info struct {
	Path    string
	Level   Level
	Creator string
	Refs    []Ref
}

// Info returns a diagnostic snapshot. The Refs slice preserves insertion
// order, matching the spec's reproducibility requirement.
func (o *Owner) Info() Info {
	o.mu.Lock()
	defer o.mu.Unlock()

	refs := make([]Ref, 0, len(o.order))
	for _, name := range o.order {
		refs = append(refs, Ref{Name: name, Label: o.refs[name]})
	}
	return Info{
		Path:    o.path,
		Level:   o.level,
		Creator: o.creator,
		Refs:    refs,
	}
}
