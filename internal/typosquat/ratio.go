// Package typosquat detects domains that are confusably similar to a
// protected domain.
package typosquat

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio returns the Ratcliff/Obershelp similarity of a and b: 2*M/T, where T
// is the combined length and M the number of characters in matching blocks.
// Two empty strings are identical. Domains are far shorter than the matcher's
// autojunk threshold, so no character is ever treated as junk.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
