package locks

// Descriptor binds one entity kind to its payload validator and lock set.
// Params: kind tag, optional payload validator, and kinds its mutations lock.
// Returns: static behavior entry; the table is built once at startup.
type Descriptor struct {
	Kind     Kind
	Validate func(payload any) error
	LockSet  []Kind
}

// Registry is the static entity-kind table.
// Params: descriptors keyed by kind.
// Returns: lookup for boundary validation and lock-set resolution.
type Registry struct {
	entries map[Kind]Descriptor
}

// NewRegistry builds the static registry from descriptors.
// Params: descriptor list; later duplicates win.
// Returns: initialized registry.
func NewRegistry(descriptors ...Descriptor) *Registry {
	entries := make(map[Kind]Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		entries[descriptor.Kind] = descriptor
	}
	return &Registry{entries: entries}
}

// Lookup returns the descriptor for one kind.
// Params: entity kind.
// Returns: descriptor and presence flag.
func (r *Registry) Lookup(kind Kind) (Descriptor, bool) {
	descriptor, ok := r.entries[kind]
	return descriptor, ok
}

// LockSet returns the kinds a mutation of the given kind must lock.
// Params: entity kind.
// Returns: registered lock set, or the kind itself when unregistered.
func (r *Registry) LockSet(kind Kind) []Kind {
	if descriptor, ok := r.entries[kind]; ok && len(descriptor.LockSet) > 0 {
		return descriptor.LockSet
	}
	return []Kind{kind}
}
