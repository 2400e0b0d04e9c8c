// Package types holds the data model shared by the drafting pipeline:
// repositories grouped into products, the lookback window, the draft request
// and the fragments streamed back by an agent.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Repository identifies a GitHub repository as an owner/name pair.
type Repository struct {
	Owner string `yaml:"owner" json:"owner"`
	Name  string `yaml:"name" json:"name"`
}

// ParseRepository parses an "owner/name" slug.
func ParseRepository(slug string) (Repository, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(slug), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("invalid repository %q: want owner/name", slug)
	}
	return Repository{Owner: owner, Name: name}, nil
}

// String renders the repository as owner/name.
func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// ProductGroup is a named roll-up of repositories reported as one unit.
type ProductGroup struct {
	Name         string
	Repositories []Repository
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (p ProductGroup) Clone() ProductGroup {
	repos := make([]Repository, len(p.Repositories))
	copy(repos, p.Repositories)
	return ProductGroup{Name: p.Name, Repositories: repos}
}

// LookbackWindow is the trailing span of days considered for activity.
type LookbackWindow struct {
	Frequency string
	Days      int
}

// Cutoff returns the start of the window relative to now, in UTC.
func (w LookbackWindow) Cutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -w.Days)
}

// DraftRequest is everything one drafting run needs. Now is the reference
// time the cutoff date is computed from; it is fixed when the request is
// built so prompts stay reproducible.
type DraftRequest struct {
	Window   LookbackWindow
	Products []ProductGroup
	Now      time.Time
}

// DraftResult is the final text assembled from one agent query.
type DraftResult struct {
	Text string
}

// FragmentKind classifies a streamed agent fragment.
type FragmentKind string

const (
	FragmentText       FragmentKind = "text"        // Draft text, appended in order
	FragmentToolCall   FragmentKind = "tool_call"   // Agent invoked a gateway tool
	FragmentToolResult FragmentKind = "tool_result" // Gateway answered a tool call
	FragmentStatus     FragmentKind = "status"      // Session/bookkeeping events
	FragmentResult     FragmentKind = "result"      // Terminal status of the query
)

// Fragment is one unit of a streamed agent response.
type Fragment struct {
	Kind    FragmentKind
	Text    string
	Tool    string
	IsError bool
}

// TextFragment is shorthand for a text fragment.
func TextFragment(text string) Fragment {
	return Fragment{Kind: FragmentText, Text: text}
}
