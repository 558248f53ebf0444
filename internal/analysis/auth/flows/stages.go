// internal/analysis/auth/flows/stages.go
package flows

import (
	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Lookahead windows, counted in entries after the previous step.
const (
	callbackWindow   = 10
	exchangeWindow   = 10
	bearerWindow     = 10
	submissionWindow = 5
	sessionWindow    = 10
)

// matcher is a predicate over a single entry.
type matcher func(e *schemas.Entry) bool

// stage is one expected step after an anchor. A chain of stages is a small
// state machine: each stage either advances from the previous step's position
// or stops the chain.
type stage struct {
	role        schemas.FlowRole
	description string
	// window is how many following entries are searched. Zero means the
	// stage is evaluated against the previous step's own entry.
	window int
	match  matcher
	// proceed, when set, must hold for the matched entry before the next
	// stage is attempted.
	proceed matcher
}

// findWithin returns the first index in from+1..from+window that matches.
func findWithin(entries []schemas.Entry, from, window int, match matcher) (int, bool) {
	last := from + window
	if last >= len(entries) {
		last = len(entries) - 1
	}
	for i := from + 1; i <= last; i++ {
		if match(&entries[i]) {
			return i, true
		}
	}
	return 0, false
}

// runStages starts at the anchor and advances through the stages until one
// fails to match. It returns the anchor step followed by every matched step.
func runStages(entries []schemas.Entry, anchor int, role schemas.FlowRole, description string, stages []stage) []schemas.FlowStep {
	steps := []schemas.FlowStep{newStep(entries, anchor, role, description)}
	cur := anchor
	for _, st := range stages {
		next := cur
		if st.window > 0 {
			idx, ok := findWithin(entries, cur, st.window, st.match)
			if !ok {
				break
			}
			next = idx
		} else if !st.match(&entries[cur]) {
			break
		}
		steps = append(steps, newStep(entries, next, st.role, st.description))
		cur = next
		if st.proceed != nil && !st.proceed(&entries[cur]) {
			break
		}
	}
	return steps
}

func newStep(entries []schemas.Entry, idx int, role schemas.FlowRole, description string) schemas.FlowStep {
	e := &entries[idx]
	return schemas.FlowStep{
		EntryIndex:  idx,
		Timestamp:   e.StartedDateTime,
		Role:        role,
		Method:      e.Request.Method,
		URL:         core.TruncateURL(e.Request.URL),
		Status:      e.Response.Status,
		Description: description,
	}
}

func newFlow(kind schemas.FlowKind, pkce bool, steps []schemas.FlowStep) schemas.AuthFlow {
	start := steps[0].Timestamp
	end := steps[len(steps)-1].Timestamp
	return schemas.AuthFlow{
		Kind:       kind,
		PKCE:       pkce,
		StartTime:  start,
		EndTime:    end,
		DurationMs: core.DurationMs(start, end),
		Steps:      steps,
	}
}
