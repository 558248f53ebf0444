// internal/analysis/auth/summary/aggregate.go
package summary

import (
	"sort"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// Category names for findings that do not carry their own.
const (
	CategoryTokenExposure = "Token Exposure"
	CategoryCORS          = "CORS"
	CategoryCSP           = "CSP"
)

const maxSampleEntries = 3

type aggregate struct {
	key      schemas.FindingKey
	severity schemas.Severity
	count    int
	samples  []int
}

type aggregator struct {
	order  []schemas.FindingKey
	groups map[schemas.FindingKey]*aggregate
}

func (g *aggregator) add(key schemas.FindingKey, sev schemas.Severity, entry *int) {
	agg, ok := g.groups[key]
	if !ok {
		agg = &aggregate{key: key, severity: sev, samples: []int{}}
		g.groups[key] = agg
		g.order = append(g.order, key)
	}
	agg.count++
	if sev > agg.severity {
		agg.severity = sev
	}
	if entry != nil && len(agg.samples) < maxSampleEntries {
		agg.samples = append(agg.samples, *entry)
	}
}

// AggregateFindings groups security notes, token exposures, CORS issues and
// CSP findings by (category, message). Each bucket is sorted by count
// descending, then by category and message.
func AggregateFindings(a *schemas.AuthAnalysis) *schemas.FindingsView {
	g := &aggregator{groups: make(map[schemas.FindingKey]*aggregate)}

	for _, n := range a.SecurityNotes {
		g.add(n.Key(), n.Severity, n.EntryIndex)
	}
	for _, e := range a.Advanced.TokenExposures {
		idx := e.EntryIndex
		g.add(schemas.FindingKey{Category: CategoryTokenExposure, Message: e.Kind.Label()}, e.Severity, &idx)
	}
	for _, c := range a.Advanced.CORSIssues {
		idx := c.EntryIndex
		g.add(schemas.FindingKey{Category: CategoryCORS, Message: c.Kind.Label()}, c.Severity, &idx)
	}
	for _, c := range a.Advanced.CSPFindings {
		g.add(schemas.FindingKey{Category: CategoryCSP, Message: c.Kind.Label()}, c.Severity, c.EntryIndex)
	}

	view := &schemas.FindingsView{
		Critical: []schemas.AggregatedFinding{},
		Warning:  []schemas.AggregatedFinding{},
		Info:     []schemas.AggregatedFinding{},
	}
	for _, key := range g.order {
		agg := g.groups[key]
		f := schemas.AggregatedFinding{
			Key:           agg.key,
			Severity:      agg.severity,
			Count:         agg.count,
			SampleEntries: agg.samples,
		}
		switch agg.severity {
		case schemas.SeverityCritical:
			view.Critical = append(view.Critical, f)
		case schemas.SeverityWarning:
			view.Warning = append(view.Warning, f)
		default:
			view.Info = append(view.Info, f)
		}
	}
	for _, bucket := range [][]schemas.AggregatedFinding{view.Critical, view.Warning, view.Info} {
		sortBucket(bucket)
	}
	return view
}

func sortBucket(b []schemas.AggregatedFinding) {
	sort.SliceStable(b, func(i, j int) bool {
		if b[i].Count != b[j].Count {
			return b[i].Count > b[j].Count
		}
		if b[i].Key.Category != b[j].Key.Category {
			return b[i].Key.Category < b[j].Key.Category
		}
		return b[i].Key.Message < b[j].Key.Message
	})
}
