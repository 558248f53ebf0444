// internal/analysis/auth/sessions/tracker.go

// Package sessions groups requests into sessions by the credential they carry
// and computes lifecycle statistics for each group.
package sessions

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

const (
	bearerKeyLength = 16
	previewLength   = 12
)

// Tracker is the session tracking analyzer.
type Tracker struct {
	*core.BaseAnalyzer
}

// NewTracker creates a session tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"session_tracker",
			"Groups requests into cookie, bearer token and API key sessions.",
			core.TypePassive,
			logger,
		),
	}
}

// Analyze publishes the tracked sessions to Result.Sessions.
func (t *Tracker) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	sessions := Track(analysisCtx.Entries)
	analysisCtx.Result.Sessions = sessions
	t.Logger.Debug("Tracked sessions", zap.Int("count", len(sessions)))
	return nil
}

// group accumulates the entries that share one identity key. Groups are kept
// in first-appearance order so output never depends on map iteration.
type group struct {
	indices []int

	// Taken from the first occurrence.
	cookie schemas.HARCookie
	token  string
	header string
}

// add records idx once, even when one request repeats the credential.
func (g *group) add(idx int) {
	if n := len(g.indices); n > 0 && g.indices[n-1] == idx {
		return
	}
	g.indices = append(g.indices, idx)
}

type grouper struct {
	order  []string
	groups map[string]*group
}

func newGrouper() *grouper {
	return &grouper{groups: make(map[string]*group)}
}

// get returns the group for key and whether it was just created.
func (g *grouper) get(key string) (*group, bool) {
	if existing, ok := g.groups[key]; ok {
		return existing, false
	}
	created := &group{}
	g.groups[key] = created
	g.order = append(g.order, key)
	return created, true
}

// Track returns every session in the archive sorted by first-seen timestamp.
func Track(entries []schemas.Entry) []schemas.AuthSession {
	cookies, bearers, apiKeys := newGrouper(), newGrouper(), newGrouper()

	for idx := range entries {
		req := &entries[idx].Request

		for _, c := range req.Cookies {
			if !core.IsSessionCookieName(c.Name) {
				continue
			}
			g, created := cookies.get(c.Name)
			if created {
				g.cookie = c
			}
			g.add(idx)
		}

		if token, ok := core.BearerToken(req); ok && token != "" {
			g, created := bearers.get(core.Prefix(token, bearerKeyLength))
			if created {
				g.token = token
			}
			g.add(idx)
		}

		for _, h := range req.Headers {
			if !core.IsAPIKeySessionHeader(h.Name) || h.Value == "" {
				continue
			}
			key := fmt.Sprintf("%s:%s", h.Name, core.Prefix(h.Value, previewLength))
			g, created := apiKeys.get(key)
			if created {
				g.header = h.Name
			}
			g.add(idx)
		}
	}

	sessions := make([]schemas.AuthSession, 0, len(cookies.order)+len(bearers.order)+len(apiKeys.order))
	for _, name := range cookies.order {
		g := cookies.groups[name]
		s := newSession(entries, g)
		s.Type = schemas.SessionType{Kind: schemas.SessionCookie, CookieName: name}
		s.Identifier = name + "=" + preview(g.cookie.Value)
		s.Attributes = &schemas.SessionAttributes{
			HTTPOnly: g.cookie.HTTPOnly,
			Secure:   g.cookie.Secure,
			Expires:  g.cookie.Expires,
			Path:     g.cookie.Path,
			Domain:   g.cookie.Domain,
		}
		sessions = append(sessions, s)
	}
	for _, key := range bearers.order {
		g := bearers.groups[key]
		s := newSession(entries, g)
		s.Type = schemas.SessionType{Kind: schemas.SessionBearerToken, IsJWT: core.IsJWTShape(g.token)}
		s.Identifier = "Bearer " + preview(key)
		sessions = append(sessions, s)
	}
	for _, key := range apiKeys.order {
		g := apiKeys.groups[key]
		s := newSession(entries, g)
		s.Type = schemas.SessionType{Kind: schemas.SessionAPIKey, HeaderName: g.header}
		s.Identifier = g.header + ": ***"
		sessions = append(sessions, s)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].FirstSeen < sessions[j].FirstSeen
	})
	return sessions
}

func newSession(entries []schemas.Entry, g *group) schemas.AuthSession {
	first := entries[g.indices[0]].StartedDateTime
	last := entries[g.indices[len(g.indices)-1]].StartedDateTime
	return schemas.AuthSession{
		FirstSeen:    first,
		LastSeen:     last,
		RequestCount: len(g.indices),
		DurationMs:   core.DurationMs(first, last),
		EntryIndices: g.indices,
	}
}

func preview(value string) string {
	if len(value) > previewLength {
		return value[:previewLength] + "..."
	}
	return value
}
