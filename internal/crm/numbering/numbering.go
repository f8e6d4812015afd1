// Package numbering formats and parses the human-readable record numbers
// (PREFIX-NNNNNN) issued to customers, leads and contracts.
package numbering

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	CustomerPrefix = "CUS"
	LeadPrefix     = "LED"
	ContractPrefix = "CON"

	// Width is the zero padded width of the numeric part.
	Width = 6
)

// Format renders the n-th number for prefix, e.g. Format("CUS", 7) = "CUS-000007".
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, Width, n)
}

// Parse extracts the numeric suffix of a number issued for prefix.
func Parse(prefix, number string) (int64, error) {
	rest, ok := strings.CutPrefix(number, prefix+"-")
	if !ok || rest == "" {
		return 0, fmt.Errorf("number %q does not have prefix %q", number, prefix)
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("number %q has a malformed suffix", number)
	}
	return n, nil
}

// Pattern returns the LIKE pattern matching numbers issued for prefix.
func Pattern(prefix string) string {
	return prefix + "-%"
}
