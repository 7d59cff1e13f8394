// Package briefing renders a canonical analysis result into the plain-text
// context handed to the report assistant.
package briefing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/maturity-report/internal/domain"
)

// Version identifies the section layout. Sections are only ever appended, so
// a briefing produced by an older version is a prefix-compatible subset.
const Version = 1

type section struct {
	title  string
	render func(b *strings.Builder, job *domain.Job, res *domain.AnalysisResult) bool
}

// sections is the fixed render order. New sections go at the end.
var sections = []section{
	{"COMPANY", renderCompany},
	{"EXECUTIVE SUMMARY", renderSummary},
	{"SCORES", renderScores},
	{"STRENGTHS", func(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool { return renderItems(b, r.Strengths) }},
	{"WEAKNESSES", func(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool { return renderItems(b, r.Weaknesses) }},
	{"FINDINGS", renderFindings},
	{"ROADMAP", renderRoadmap},
	{"RECOMMENDED SERVICES", renderServices},
	{"TECHNICAL HEALTH", renderTechnical},
	{"COMPLIANCE", renderCompliance},
	{"SOCIAL MEDIA", renderSocial},
}

// Build renders every populated section of res. Sections without data are
// omitted entirely. job may be nil.
func Build(job *domain.Job, res domain.AnalysisResult) string {
	var out strings.Builder
	for _, s := range sections {
		var body strings.Builder
		if !s.render(&body, job, &res) {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("## ")
		out.WriteString(s.title)
		out.WriteString("\n")
		out.WriteString(body.String())
	}
	return out.String()
}

func line(b *strings.Builder, format string, args ...any) {
	fmt.Fprintf(b, format, args...)
	b.WriteString("\n")
}

func renderCompany(b *strings.Builder, job *domain.Job, r *domain.AnalysisResult) bool {
	name, website, sector := r.Company.Name, r.Company.Website, r.Company.Sector
	if job != nil {
		if name == "" {
			name = job.Company.CompanyName
		}
		if website == "" {
			website = job.Company.Website
		}
		if sector == "" {
			sector = job.Company.Sector
		}
	}
	wrote := false
	if name != "" {
		line(b, "Name: %s", name)
		wrote = true
	}
	if website != "" {
		line(b, "Website: %s", website)
		wrote = true
	}
	if sector != "" {
		line(b, "Sector: %s", sector)
		wrote = true
	}
	if job != nil && job.ID != "" {
		line(b, "Report ID: %s", job.ID)
		wrote = true
	}
	return wrote
}

func renderSummary(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool {
	if r.Company.ExecutiveSummary == "" {
		return false
	}
	line(b, "%s", r.Company.ExecutiveSummary)
	return true
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func renderScores(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool {
	for _, c := range domain.Categories {
		s := r.Scores.Get(c)
		label := c.DefaultLabel()
		entry := fmt.Sprintf("- %s: %s/%s", label, formatScore(s.Score), formatScore(s.MaxScore))
		if s.Label != "" && s.Label != label {
			entry += " (" + s.Label + ")"
		}
		if s.Description != "" {
			entry += " - " + s.Description
		}
		line(b, "%s", entry)
	}
	return true
}

func renderItems(b *strings.Builder, items []domain.Item) bool {
	wrote := false
	for _, it := range items {
		if s := it.String(); s != "" {
			line(b, "- %s", s)
			wrote = true
		}
	}
	return wrote
}

func renderFindings(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool {
	for _, f := range r.Findings {
		entry := fmt.Sprintf("- [%s] %s", f.Kind, f.Title)
		if f.Description != "" {
			entry += ": " + f.Description
		}
		line(b, "%s", entry)
	}
	return len(r.Findings) > 0
}

func renderRoadmap(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool {
	wrote := false
	for _, h := range domain.Horizons {
		phase := r.Phase(h)
		if len(phase.Steps) == 0 {
			continue
		}
		line(b, "%s:", h.Label())
		for i, s := range phase.Steps {
			if s.Rationale != "" {
				line(b, "  %d. %s (why: %s)", i+1, s.Action, s.Rationale)
			} else {
				line(b, "  %d. %s", i+1, s.Action)
			}
		}
		wrote = true
	}
	return wrote
}

func renderServices(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool {
	for _, s := range r.RecommendedServices {
		entry := "- " + s.Name
		if s.Priority != "" {
			entry += " [priority: " + s.Priority + "]"
		}
		if s.Description != "" {
			entry += ": " + s.Description
		}
		line(b, "%s", entry)
	}
	return len(r.RecommendedServices) > 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func renderTechnical(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool {
	t := r.Technical
	if t == nil {
		return false
	}
	line(b, "- Mobile score: %s/100", formatScore(t.MobileScore))
	line(b, "- Desktop score: %s/100", formatScore(t.DesktopScore))
	if t.FirstContentfulPaint != "" {
		line(b, "- First contentful paint: %s", t.FirstContentfulPaint)
	}
	if t.LargestContentfulPaint != "" {
		line(b, "- Largest contentful paint: %s", t.LargestContentfulPaint)
	}
	line(b, "- SSL: %s", yesNo(t.SSLEnabled))
	return true
}

func renderCompliance(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool {
	c := r.Compliance
	if c == nil {
		return false
	}
	line(b, "- Data protection (KVKK/GDPR): %s", yesNo(c.DataProtection))
	line(b, "- Cookie consent: %s", yesNo(c.CookieConsent))
	line(b, "- Privacy policy: %s", yesNo(c.PrivacyPolicy))
	if c.Notes != "" {
		line(b, "- Notes: %s", c.Notes)
	}
	return true
}

func renderSocial(b *strings.Builder, _ *domain.Job, r *domain.AnalysisResult) bool {
	s := r.Social
	if s == nil || len(s.Profiles) == 0 {
		return false
	}
	for _, p := range s.Profiles {
		status := "inactive"
		if p.Active {
			status = "active"
		}
		if p.URL != "" {
			line(b, "- %s: %s (%s)", p.Platform, p.URL, status)
		} else {
			line(b, "- %s: %s", p.Platform, status)
		}
	}
	return true
}
