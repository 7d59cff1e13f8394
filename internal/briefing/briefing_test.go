package briefing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/normalize"
)

func fullResult() domain.AnalysisResult {
	res := normalize.Normalize([]byte(`{}`))
	res.Company = domain.Company{
		Name:             "Acme Corp",
		Website:          "https://acme.example",
		Sector:           "Retail",
		ExecutiveSummary: "Solid basics, weak social reach.",
	}
	res.Scores.Set(domain.CategoryOverall, domain.Score{Score: 72, MaxScore: 100, Label: "Good"})
	res.Strengths = []domain.Item{{Title: "Fast site"}}
	res.Weaknesses = []domain.Item{{Title: "No blog", Description: "Content is stale"}}
	res.Findings = []domain.Finding{{Kind: domain.FindingCritical, Title: "Expired cert"}}
	res.Roadmap[0].Steps = []domain.RoadmapStep{{Action: "Renew cert", Rationale: "Browsers warn"}}
	res.RecommendedServices = []domain.ServicePackage{{Name: "SEO Starter", Priority: "high"}}
	res.Technical = &domain.TechnicalHealth{MobileScore: 61, DesktopScore: 88, SSLEnabled: true}
	res.Compliance = &domain.ComplianceSnapshot{DataProtection: true}
	res.Social = &domain.SocialPresence{Profiles: []domain.SocialProfile{
		{Platform: "instagram", URL: "https://instagram.com/acme", Active: true},
	}}
	return res
}

func TestBuildSectionOrder(t *testing.T) {
	out := Build(nil, fullResult())

	want := []string{
		"## COMPANY", "## EXECUTIVE SUMMARY", "## SCORES", "## STRENGTHS",
		"## WEAKNESSES", "## FINDINGS", "## ROADMAP", "## RECOMMENDED SERVICES",
		"## TECHNICAL HEALTH", "## COMPLIANCE", "## SOCIAL MEDIA",
	}
	last := -1
	for _, heading := range want {
		idx := strings.Index(out, heading)
		require.NotEqual(t, -1, idx, "missing %s", heading)
		assert.Greater(t, idx, last, "%s out of order", heading)
		last = idx
	}
}

func TestBuildContent(t *testing.T) {
	out := Build(nil, fullResult())

	assert.Contains(t, out, "Name: Acme Corp")
	assert.Contains(t, out, "- Overall: 72/100 (Good)")
	assert.Contains(t, out, "- SEO: 0/100")
	assert.Contains(t, out, "- No blog: Content is stale")
	assert.Contains(t, out, "- [critical] Expired cert")
	assert.Contains(t, out, "1. Renew cert (why: Browsers warn)")
	assert.Contains(t, out, "- SEO Starter [priority: high]")
	assert.Contains(t, out, "- SSL: yes")
	assert.Contains(t, out, "- Cookie consent: no")
	assert.Contains(t, out, "- instagram: https://instagram.com/acme (active)")
}

func TestBuildOmitsEmptySections(t *testing.T) {
	out := Build(nil, normalize.Normalize([]byte(`{"scores":{"overall":72}}`)))

	assert.Contains(t, out, "## SCORES")
	for _, heading := range []string{
		"## COMPANY", "## EXECUTIVE SUMMARY", "## STRENGTHS", "## WEAKNESSES",
		"## FINDINGS", "## ROADMAP", "## RECOMMENDED SERVICES",
		"## TECHNICAL HEALTH", "## COMPLIANCE", "## SOCIAL MEDIA",
	} {
		assert.NotContains(t, out, heading)
	}
}

func TestBuildFallsBackToJobProfile(t *testing.T) {
	job := &domain.Job{
		ID:      "job-1",
		Company: domain.CompanyProfile{CompanyName: "Profile Co", Website: "https://profile.example"},
	}
	out := Build(job, normalize.Normalize([]byte(`{}`)))

	assert.Contains(t, out, "Name: Profile Co")
	assert.Contains(t, out, "Website: https://profile.example")
	assert.Contains(t, out, "Report ID: job-1")
}

func TestBuildDeterministic(t *testing.T) {
	res := fullResult()
	assert.Equal(t, Build(nil, res), Build(nil, res))
}
