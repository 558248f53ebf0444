// internal/analysis/auth/advanced/refresh.go
package advanced

import (
	"fmt"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Refresh counts at or above this are treated as automatic rotation.
const rotationThreshold = 3

func refreshPatterns(entries []schemas.Entry) []schemas.TokenRefreshPattern {
	var indices []int
	for i := range entries {
		if core.IsTokenRefreshRequest(&entries[i].Request) {
			indices = append(indices, i)
		}
	}
	out := make([]schemas.TokenRefreshPattern, 0, 1)
	if len(indices) < 2 {
		return out
	}

	kind := schemas.RefreshOnDemand
	if len(indices) >= rotationThreshold {
		kind = schemas.RefreshAutomaticRotation
	}
	return append(out, schemas.TokenRefreshPattern{
		Kind:             kind,
		RefreshCount:     len(indices),
		FrequencySeconds: meanGapSeconds(entries, indices),
		Description:      fmt.Sprintf("Token refreshed %d times during session", len(indices)),
		EntryIndices:     indices,
	})
}

// meanGapSeconds averages the time between consecutive refreshes, skipping
// pairs where either timestamp does not parse.
func meanGapSeconds(entries []schemas.Entry, indices []int) float64 {
	var total float64
	gaps := 0
	for k := 1; k < len(indices); k++ {
		prev, ok1 := core.ParseTimestamp(entries[indices[k-1]].StartedDateTime)
		cur, ok2 := core.ParseTimestamp(entries[indices[k]].StartedDateTime)
		if !ok1 || !ok2 {
			continue
		}
		total += cur.Sub(prev).Seconds()
		gaps++
	}
	if gaps == 0 {
		return 0
	}
	return total / float64(gaps)
}
