package backup

// Blacklist is an immutable set of container and volume names excluded
// from every backup and restore operation. Matching is exact: no globbing,
// no case folding.
type Blacklist struct {
	names map[string]struct{}
}

// NewBlacklist builds a blacklist from a list of names. Empty entries are
// dropped.
func NewBlacklist(names []string) *Blacklist {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return &Blacklist{names: set}
}

// Contains reports whether name is blacklisted.
func (b *Blacklist) Contains(name string) bool {
	if b == nil {
		return false
	}
	_, ok := b.names[name]
	return ok
}

// Len returns the number of blacklisted names.
func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.names)
}
