package op

import (
	"fmt"
	"strings"
)

// Category identifies an operation's role in the dependency and
// obsolescence tables.
type Category string

const (
	StyleInit    Category = "style-init"
	StyleApply   Category = "style-apply"
	DataAdd      Category = "data-add"
	DataRemove   Category = "data-remove"
	DataUpdate   Category = "data-update"
	LayoutSet    Category = "layout-set"
	LayoutUpdate Category = "layout-update"
	AlgorithmRun Category = "algorithm-run"
	CameraUpdate Category = "camera-update"
	RenderUpdate Category = "render-update"
)

// allCategories is in declaration order. Index order is used as the
// deterministic tie-break wherever categories must be sorted.
var allCategories = []Category{
	StyleInit,
	StyleApply,
	DataAdd,
	DataRemove,
	DataUpdate,
	LayoutSet,
	LayoutUpdate,
	AlgorithmRun,
	CameraUpdate,
	RenderUpdate,
}

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	return append([]Category(nil), allCategories...)
}

// Valid reports whether c is one of the closed set of categories.
func (c Category) Valid() bool {
	return c.index() >= 0
}

func (c Category) index() int {
	for i, known := range allCategories {
		if known == c {
			return i
		}
	}
	return -1
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a name into a Category.
// Surrounding whitespace is ignored; matching is case-insensitive.
func ParseCategory(name string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(name)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", name)
	}
	return c, nil
}

// ParseCategories parses every name, failing on the first unknown one.
func ParseCategories(names []string) ([]Category, error) {
	out := make([]Category, 0, len(names))
	for _, name := range names {
		c, err := ParseCategory(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
