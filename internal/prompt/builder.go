// Package prompt renders the system and user instructions handed to the
// drafting agent. Output is a pure function of the draft request: the only
// time-derived value is the cutoff date, computed from the request's Now.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"text/template"

	"postdraft/internal/types"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// CutoffLayout formats the window's start date.
const CutoffLayout = "2006-01-02"

// Prompts is the rendered instruction pair.
type Prompts struct {
	System string
	User   string
}

// Builder renders prompts for a fixed organization and post shape.
type Builder struct {
	organization    string
	maxChars        int
	maxThreadPosts  int
	pullRequestTool string
	releaseTool     string
}

// Option configures a Builder.
type Option func(*Builder)

// WithOrganization sets the organization the posts speak for.
func WithOrganization(name string) Option {
	return func(b *Builder) { b.organization = name }
}

// WithPostLimits sets the per-post character limit and max thread length.
func WithPostLimits(maxChars, maxThreadPosts int) Option {
	return func(b *Builder) {
		b.maxChars = maxChars
		b.maxThreadPosts = maxThreadPosts
	}
}

// WithToolNames sets the operation names the prompts refer to.
func WithToolNames(pullRequests, releases string) Option {
	return func(b *Builder) {
		b.pullRequestTool = pullRequests
		b.releaseTool = releases
	}
}

// NewBuilder creates a builder with X-sized defaults.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		organization:    "OpenGradient",
		maxChars:        280,
		maxThreadPosts:  3,
		pullRequestTool: "list_pull_requests",
		releaseTool:     "list_releases",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type systemData struct {
	Organization    string
	MaxChars        int
	MaxThreadPosts  int
	PullRequestTool string
	ReleaseTool     string
}

type userData struct {
	Organization    string
	PullRequestTool string
	ReleaseTool     string
	Cutoff          string
	Days            int
	Products        []types.ProductGroup
}

// Build renders the system and user prompts for a request.
func (b *Builder) Build(req types.DraftRequest) (Prompts, error) {
	if req.Window.Days <= 0 {
		return Prompts{}, fmt.Errorf("lookback window must be positive, got %d days", req.Window.Days)
	}
	if req.Now.IsZero() {
		return Prompts{}, errors.New("draft request has no reference time")
	}

	sys := systemData{
		Organization:    b.organization,
		MaxChars:        b.maxChars,
		MaxThreadPosts:  b.maxThreadPosts,
		PullRequestTool: b.pullRequestTool,
		ReleaseTool:     b.releaseTool,
	}

	system, err := render("system.tmpl", sys)
	if err != nil {
		return Prompts{}, err
	}

	user, err := render("user.tmpl", userData{
		Organization:    b.organization,
		PullRequestTool: b.pullRequestTool,
		ReleaseTool:     b.releaseTool,
		Cutoff:          req.Window.Cutoff(req.Now).Format(CutoffLayout),
		Days:            req.Window.Days,
		Products:        req.Products,
	})
	if err != nil {
		return Prompts{}, err
	}

	return Prompts{System: system, User: user}, nil
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
