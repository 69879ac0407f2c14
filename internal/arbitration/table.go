package arbitration

import (
	"fmt"
	"sort"
)

// #region tuple

// Tuple is a per-category default score.
type Tuple struct {
	Complexity   int `yaml:"complexity" json:"complexity" validate:"gte=1,lte=5"`
	Importance   int `yaml:"importance" json:"importance" validate:"gte=1,lte=5"`
	Deferability int `yaml:"deferability" json:"deferability" validate:"gte=1,lte=5"`
	Impact       int `yaml:"impact" json:"impact" validate:"gte=1,lte=5"`
}

// Total sums the four dimensions.
func (t Tuple) Total() int {
	return t.Complexity + t.Importance + t.Deferability + t.Impact
}

func (t Tuple) valid() bool {
	for _, v := range []int{t.Complexity, t.Importance, t.Deferability, t.Impact} {
		if v < 1 || v > 5 {
			return false
		}
	}
	return true
}

// #endregion tuple

// #region table

// DefaultTableVersion identifies the stock table in decision records.
const DefaultTableVersion = "mps-v1"

// maxUnknownTotal keeps unknown findings in P3 even after both markers fire.
const maxUnknownTotal = 7

// Table maps every category to its default tuple.
type Table struct {
	version string
	tuples  map[Category]Tuple
}

// DefaultTable returns the stock mps-v1 table.
func DefaultTable() Table {
	return Table{
		version: DefaultTableVersion,
		tuples: map[Category]Tuple{
			CategoryDuplication:  {Complexity: 2, Importance: 4, Deferability: 5, Impact: 4}, // 15 P1
			CategoryDependency:   {Complexity: 3, Importance: 3, Deferability: 4, Impact: 4}, // 14 P1
			CategoryDeadCode:     {Complexity: 2, Importance: 2, Deferability: 2, Impact: 3}, // 9 P3
			CategoryProtocol:     {Complexity: 3, Importance: 4, Deferability: 4, Impact: 5}, // 16 P0
			CategoryOrphanedFile: {Complexity: 1, Importance: 2, Deferability: 2, Impact: 2}, // 7 P3
			CategoryUnknown:      {Complexity: 1, Importance: 1, Deferability: 2, Impact: 3}, // 7 P3
		},
	}
}

// WithOverrides returns a copy of t with the given tuples replaced. Keys are
// parsed with ParseCategory; a key that is not a known category name is
// rejected rather than silently landing on unknown.
func (t Table) WithOverrides(overrides map[string]Tuple) (Table, error) {
	if len(overrides) == 0 {
		return t, nil
	}
	out := Table{version: t.version + "+overrides", tuples: make(map[Category]Tuple, len(t.tuples))}
	for c, tup := range t.tuples {
		out.tuples[c] = tup
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tup := overrides[k]
		c := ParseCategory(k)
		if c == CategoryUnknown && k != string(CategoryUnknown) {
			return Table{}, fmt.Errorf("override %q: unknown category", k)
		}
		if !tup.valid() {
			return Table{}, fmt.Errorf("override %q: every dimension must be in [1,5]", k)
		}
		out.tuples[c] = tup
	}
	if total := out.tuples[CategoryUnknown].Total(); total > maxUnknownTotal {
		return Table{}, fmt.Errorf("override %q: total %d exceeds %d", CategoryUnknown, total, maxUnknownTotal)
	}
	return out, nil
}

// Version identifies the table in decision records.
func (t Table) Version() string { return t.version }

// Tuple returns the tuple for c, falling back to the unknown tuple.
func (t Table) Tuple(c Category) Tuple {
	if tup, ok := t.tuples[c]; ok {
		return tup
	}
	return t.tuples[CategoryUnknown]
}

// #endregion table
