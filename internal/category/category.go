// Package category maps catalog cost codes onto the coarse pricing categories
// that pricing modes adjust.
package category

import (
	"strconv"
	"strings"
)

// Category is a coarse pricing classification of a catalog item.
type Category string

const (
	Labor         Category = "labor"
	Materials     Category = "materials"
	Installation  Category = "installation"
	Services      Category = "services"
	Equipment     Category = "equipment"
	Subcontractor Category = "subcontractor"
	// All is the catch-all category and the wildcard key in mode adjustments.
	All Category = "all"
)

type codeRange struct {
	lo, hi   int
	category Category
}

// ranges are inclusive on both ends and must not overlap.
var ranges = []codeRange{
	{100, 199, Labor},
	{200, 299, Installation},
	{300, 399, Services},
	{400, 499, Equipment},
	{500, 699, Materials},
	{700, 799, Subcontractor},
}

// Classify returns the category for a cost code. Non-digit characters are
// stripped before parsing; empty, unparsable or out-of-range codes map to All.
func Classify(costCode string) Category {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, costCode)
	if digits == "" {
		return All
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return All
	}

	for _, rg := range ranges {
		if n >= rg.lo && n <= rg.hi {
			return rg.category
		}
	}
	return All
}

// Known returns every category, catch-all last.
func Known() []Category {
	return []Category{Labor, Materials, Installation, Services, Equipment, Subcontractor, All}
}

// IsKnown reports whether name is a category adjustments may be keyed by.
func IsKnown(name string) bool {
	for _, c := range Known() {
		if string(c) == name {
			return true
		}
	}
	return false
}
