package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postdraft/internal/types"
)

var refTime = time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)

func sampleRequest() types.DraftRequest {
	return types.DraftRequest{
		Window: types.LookbackWindow{Frequency: "weekly", Days: 7},
		Products: []types.ProductGroup{
			{Name: "OpenGradient SDK", Repositories: []types.Repository{{Owner: "OpenGradient", Name: "OpenGradient-SDK"}}},
			{Name: "BitQuant", Repositories: []types.Repository{
				{Owner: "OpenGradient", Name: "bitquant"},
				{Owner: "OpenGradient", Name: "bitquant-app"},
			}},
		},
		Now: refTime,
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder()

	first, err := b.Build(sampleRequest())
	require.NoError(t, err)
	second, err := NewBuilder().Build(sampleRequest())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("prompts differ between runs (-first +second):\n%s", diff)
	}
}

func TestBuild_UserPromptListsProductsInOrder(t *testing.T) {
	p, err := NewBuilder().Build(sampleRequest())
	require.NoError(t, err)

	assert.Contains(t, p.User, "2026-10-12")
	assert.Contains(t, p.User, "lookback: 7 days")

	sdk := strings.Index(p.User, "## OpenGradient SDK")
	bq := strings.Index(p.User, "## BitQuant")
	repo1 := strings.Index(p.User, "- OpenGradient/bitquant\n")
	repo2 := strings.Index(p.User, "- OpenGradient/bitquant-app\n")
	require.True(t, sdk >= 0 && bq >= 0 && repo1 >= 0 && repo2 >= 0, p.User)
	assert.Less(t, sdk, bq)
	assert.Less(t, bq, repo1)
	assert.Less(t, repo1, repo2)
}

func TestBuild_DailySingular(t *testing.T) {
	req := sampleRequest()
	req.Window = types.LookbackWindow{Frequency: "daily", Days: 1}

	p, err := NewBuilder().Build(req)
	require.NoError(t, err)
	assert.Contains(t, p.User, "lookback: 1 day)")
	assert.Contains(t, p.User, "2026-10-18")
}

func TestBuild_CutoffOnlyTimeDependency(t *testing.T) {
	req := sampleRequest()
	later := req
	later.Now = refTime.Add(3 * time.Hour) // same calendar day

	a, err := NewBuilder().Build(req)
	require.NoError(t, err)
	b, err := NewBuilder().Build(later)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuild_SystemPrompt(t *testing.T) {
	p, err := NewBuilder(
		WithOrganization("Acme"),
		WithPostLimits(500, 2),
		WithToolNames("mcp__github__list_pull_requests", "mcp__github__list_releases"),
	).Build(sampleRequest())
	require.NoError(t, err)

	assert.Contains(t, p.System, "strategist for Acme")
	assert.Contains(t, p.System, "under 500 characters")
	assert.Contains(t, p.System, "max\n   2 posts")
	assert.Contains(t, p.System, "mcp__github__list_pull_requests")
	assert.Contains(t, p.System, "mcp__github__list_releases")
	assert.Contains(t, p.System, "Plain text only")
	assert.Contains(t, p.User, "mcp__github__list_pull_requests")
}

func TestBuild_EmptyProducts(t *testing.T) {
	req := sampleRequest()
	req.Products = nil

	p, err := NewBuilder().Build(req)
	require.NoError(t, err)

	assert.Contains(t, p.User, "Produce no output.")
	assert.NotContains(t, p.User, "/")
	assert.NotContains(t, p.User, "OpenGradient/")
}

func TestBuild_InvalidRequest(t *testing.T) {
	req := sampleRequest()
	req.Window.Days = 0
	_, err := NewBuilder().Build(req)
	assert.Error(t, err)

	req = sampleRequest()
	req.Now = time.Time{}
	_, err = NewBuilder().Build(req)
	assert.Error(t, err)
}
