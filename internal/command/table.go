package command

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Table is the declarative command registry. Each module contributes a set
// of descriptors; a module's set is replaced wholesale on reload while other
// modules' entries are untouched. Resolution returns descriptor values, so
// an in-flight invocation keeps the descriptor it started with even if the
// table is swapped underneath it.
type Table struct {
	mu       sync.RWMutex
	byModule map[string][]Descriptor
	index    map[string]Descriptor
	owner    map[string]string // token → module, for conflict reporting
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		byModule: make(map[string][]Descriptor),
		index:    make(map[string]Descriptor),
		owner:    make(map[string]string),
	}
}

// SetModule validates descs and replaces the module's descriptor set
// atomically. On any validation or conflict error nothing changes.
func (t *Table) SetModule(module string, descs []Descriptor) error {
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Probe for token conflicts against other modules and within descs.
	seen := make(map[string]string)
	for _, d := range descs {
		tokens := append([]string{d.Name}, d.Aliases...)
		for _, tok := range tokens {
			if owner, ok := t.owner[tok]; ok && owner != module {
				return fmt.Errorf("%w: %q (owned by %s)", ErrDuplicate, tok, owner)
			}
			if prev, ok := seen[tok]; ok {
				return fmt.Errorf("%w: %q (twice in %s and %s)", ErrDuplicate, tok, prev, d.Name)
			}
			seen[tok] = d.Name
		}
	}

	t.removeLocked(module)
	t.byModule[module] = descs
	for _, d := range descs {
		t.index[d.Name] = d
		t.owner[d.Name] = module
		for _, a := range d.Aliases {
			t.index[a] = d
			t.owner[a] = module
		}
	}
	return nil
}

// RemoveModule drops every descriptor the module contributed.
func (t *Table) RemoveModule(module string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(module)
}

func (t *Table) removeLocked(module string) {
	for _, d := range t.byModule[module] {
		delete(t.index, d.Name)
		delete(t.owner, d.Name)
		for _, a := range d.Aliases {
			delete(t.index, a)
			delete(t.owner, a)
		}
	}
	delete(t.byModule, module)
}

// Resolve matches a token against command names and aliases, exactly and
// case-sensitively.
func (t *Table) Resolve(token string) (Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.index[token]
	return d, ok
}

// All returns every registered descriptor sorted by name.
func (t *Table) All() []Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Descriptor
	for _, descs := range t.byModule {
		out = append(out, descs...)
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
