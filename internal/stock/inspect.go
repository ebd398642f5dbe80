// Package stock decides product availability from scoped page text.
package stock

import "strings"

type Status int

const (
	// Indeterminate means no status fragment was found; the page layout
	// probably changed. Never treated as available.
	Indeterminate Status = iota
	OutOfStock
	Available
)

func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case OutOfStock:
		return "out_of_stock"
	default:
		return "indeterminate"
	}
}

// Inspect classifies the candidate status fragments of a page.
//
// A single fragment containing marker (case-sensitive) is enough to report
// OutOfStock, whatever the other fragments say.
func Inspect(fragments []string, marker string) Status {
	if len(fragments) == 0 {
		return Indeterminate
	}
	for _, f := range fragments {
		if strings.Contains(f, marker) {
			return OutOfStock
		}
	}
	return Available
}
