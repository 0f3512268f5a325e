package collection

import "strings"

// WorkSet is a set of outstanding operations for one entry.
type WorkSet uint8

const (
	LoadFull WorkSet = 1 << iota
	CreateThumbnail
	Unload
)

var workNames = []struct {
	w    WorkSet
	name string
}{
	{LoadFull, "load_full"},
	{CreateThumbnail, "create_thumbnail"},
	{Unload, "unload"},
}

// Has reports whether every operation in o is in w.
func (w WorkSet) Has(o WorkSet) bool {
	return w&o == o && o != 0
}

// Empty reports whether no operation is set.
func (w WorkSet) Empty() bool {
	return w == 0
}

// Flags returns the single operations in w, in execution order.
func (w WorkSet) Flags() []WorkSet {
	var out []WorkSet
	for _, n := range workNames {
		if w&n.w != 0 {
			out = append(out, n.w)
		}
	}
	return out
}

func (w WorkSet) String() string {
	if w == 0 {
		return "none"
	}
	var parts []string
	for _, n := range workNames {
		if w&n.w != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
