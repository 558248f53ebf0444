// internal/results/prioritize.go
package results

import (
	"sort"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// Prioritize sorts findings in place: most severe first, then by entry index
// with run-level findings (index -1) last, then by vulnerability name.
func Prioritize(findings []schemas.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.EntryIndex != b.EntryIndex {
			return entryOrder(a.EntryIndex) < entryOrder(b.EntryIndex)
		}
		return a.VulnerabilityName < b.VulnerabilityName
	})
}

func entryOrder(idx int) int {
	if idx < 0 {
		return int(^uint(0) >> 1)
	}
	return idx
}
