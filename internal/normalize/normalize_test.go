package normalize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/maturity-report/internal/domain"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func assertScoresInRange(t *testing.T, res domain.AnalysisResult) {
	t.Helper()
	for _, c := range domain.Categories {
		s := res.Scores.Get(c)
		assert.GreaterOrEqual(t, s.Score, 0.0, "category %s", c)
		assert.LessOrEqual(t, s.Score, 100.0, "category %s", c)
		assert.NotEmpty(t, s.Label, "category %s", c)
	}
}

func TestNormalizeTotalOverDialects(t *testing.T) {
	inputs := map[string][]byte{
		"legacy":  loadFixture(t, "legacy.json"),
		"tr_v1":   loadFixture(t, "tr_v1.json"),
		"tr_v2":   loadFixture(t, "tr_v2.json"),
		"empty":   []byte(`{}`),
		"null":    []byte(`null`),
		"nothing": nil,
		"number":  []byte(`42`),
		"garbage": []byte(`<<not json>>`),
		"array":   []byte(`[1, "two", null]`),
	}
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			var res domain.AnalysisResult
			require.NotPanics(t, func() { res = Normalize(raw) })
			assertScoresInRange(t, res)
			require.NotNil(t, res.Strengths)
			require.NotNil(t, res.Weaknesses)
			require.NotNil(t, res.Findings)
			require.NotNil(t, res.RecommendedServices)
			require.Len(t, res.Roadmap, 3)
			for i, h := range domain.Horizons {
				require.Equal(t, h, res.Roadmap[i].Horizon)
				require.NotNil(t, res.Roadmap[i].Steps)
			}
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	for _, name := range []string{"legacy.json", "tr_v1.json", "tr_v2.json"} {
		raw := loadFixture(t, name)
		if diff := cmp.Diff(Normalize(raw), Normalize(raw)); diff != "" {
			t.Fatalf("%s: second normalization differs (-first +second):\n%s", name, diff)
		}
	}
}

func TestNormalizeEmptyObjectDefaults(t *testing.T) {
	res := Normalize([]byte(`{}`))

	want := domain.AnalysisResult{
		Scores: domain.Scores{
			Overall:         domain.Score{MaxScore: 100, Label: "Overall"},
			DigitalPresence: domain.Score{MaxScore: 100, Label: "Digital Presence"},
			WebPerformance:  domain.Score{MaxScore: 100, Label: "Web Performance"},
			SEO:             domain.Score{MaxScore: 100, Label: "SEO"},
			SocialMedia:     domain.Score{MaxScore: 100, Label: "Social Media"},
			Security:        domain.Score{MaxScore: 100, Label: "Security"},
			Compliance:      domain.Score{MaxScore: 100, Label: "Compliance"},
		},
		Strengths:           []domain.Item{},
		Weaknesses:          []domain.Item{},
		Findings:            []domain.Finding{},
		Roadmap:             emptyRoadmap(),
		RecommendedServices: []domain.ServicePackage{},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("unexpected defaults (-want +got):\n%s", diff)
	}
}

func TestNormalizeLegacyOverallOnly(t *testing.T) {
	res := Normalize([]byte(`{"scores":{"overall":72}}`))

	assert.Equal(t, 72.0, res.Scores.Overall.Score)
	assert.Empty(t, res.Strengths)
	assert.Empty(t, res.Weaknesses)
	assert.Empty(t, res.Findings)
	assert.Empty(t, res.RecommendedServices)
	for _, phase := range res.Roadmap {
		assert.Empty(t, phase.Steps)
	}
	assert.Nil(t, res.Technical)
	assert.Nil(t, res.Compliance)
	assert.Nil(t, res.Social)
}

func TestNormalizeTurkishV1Scenario(t *testing.T) {
	res := NormalizeValue(map[string]any{
		"firma_adi":    "Acme",
		"guclu_yonler": []any{map[string]any{"baslik": "Hızlı site"}},
	})

	assert.Equal(t, "Acme", res.Company.Name)
	require.Len(t, res.Strengths, 1)
	assert.Equal(t, "Hızlı site", res.Strengths[0].Title)
	assert.Equal(t, 0.0, res.Scores.Overall.Score)
	assert.Equal(t, "Overall", res.Scores.Overall.Label)
}

func TestNormalizeLegacyFixture(t *testing.T) {
	res := Normalize(loadFixture(t, "legacy.json"))

	assert.Equal(t, "Acme Corp", res.Company.Name)
	assert.Equal(t, "https://acme.example", res.Company.Website)
	assert.Equal(t, 72.0, res.Scores.Overall.Score)
	assert.Equal(t, 58.0, res.Scores.WebPerformance.Score)
	assert.Equal(t, []domain.Item{{Title: "Fast checkout"}, {Title: "Strong brand"}}, res.Strengths)
	require.Len(t, res.Findings, 2)
	assert.Equal(t, domain.FindingCritical, res.Findings[1].Kind)

	assert.Equal(t, []domain.RoadmapStep{{Action: "Add cookie banner"}}, res.Phase(domain.HorizonImmediate).Steps)
	assert.Equal(t, []domain.RoadmapStep{{Action: "Start a blog"}}, res.Phase(domain.HorizonNearTerm).Steps)
	assert.Equal(t, []domain.RoadmapStep{{Action: "Launch loyalty app"}}, res.Phase(domain.HorizonLongTerm).Steps)

	assert.Equal(t, []domain.ServicePackage{{Name: "SEO Starter"}, {Name: "Social Growth", Priority: "high"}}, res.RecommendedServices)

	require.NotNil(t, res.Technical)
	assert.Equal(t, domain.TechnicalHealth{
		MobileScore: 61, DesktopScore: 88,
		FirstContentfulPaint: "1.8s", LargestContentfulPaint: "2.9 s",
		SSLEnabled: true,
	}, *res.Technical)

	require.NotNil(t, res.Compliance)
	assert.True(t, res.Compliance.DataProtection)
	assert.False(t, res.Compliance.CookieConsent)
	assert.True(t, res.Compliance.PrivacyPolicy)

	require.NotNil(t, res.Social)
	assert.Equal(t, []domain.SocialProfile{
		{Platform: "facebook", URL: "https://facebook.com/acme", Active: true},
		{Platform: "instagram", URL: "", Active: false},
		{Platform: "linkedin", URL: "https://linkedin.com/company/acme", Active: true},
	}, res.Social.Profiles)
}

func TestNormalizeTurkishV1Fixture(t *testing.T) {
	res := Normalize(loadFixture(t, "tr_v1.json"))

	assert.Equal(t, "Anadolu Tekstil", res.Company.Name)
	assert.Equal(t, 64.0, res.Scores.Overall.Score)
	assert.Equal(t, 70.0, res.Scores.DigitalPresence.Score)
	require.Len(t, res.Strengths, 2)
	assert.Equal(t, "Hızlı site: Sayfalar 2 saniyenin altında açılıyor", res.Strengths[0].String())

	kinds := make([]domain.FindingKind, 0, len(res.Findings))
	for _, f := range res.Findings {
		kinds = append(kinds, f.Kind)
	}
	assert.Equal(t, []domain.FindingKind{domain.FindingPositive, domain.FindingWarning, domain.FindingOpportunity}, kinds)

	assert.Len(t, res.Phase(domain.HorizonImmediate).Steps, 1)
	assert.Len(t, res.Phase(domain.HorizonNearTerm).Steps, 2)
	assert.Len(t, res.Phase(domain.HorizonLongTerm).Steps, 1)

	require.NotNil(t, res.Technical)
	assert.Equal(t, "3200ms", res.Technical.LargestContentfulPaint)
	assert.True(t, res.Technical.SSLEnabled)

	require.NotNil(t, res.Compliance)
	assert.True(t, res.Compliance.DataProtection)
	assert.False(t, res.Compliance.CookieConsent)

	require.NotNil(t, res.Social)
	assert.Equal(t, 2, res.Social.ActiveCount())
}

func TestNormalizeTurkishV2Fixture(t *testing.T) {
	res := Normalize(loadFixture(t, "tr_v2.json"))

	assert.Equal(t, "Ege Gıda", res.Company.Name)
	assert.Equal(t, "Gıda", res.Company.Sector)
	assert.Equal(t, domain.Score{Score: 75, MaxScore: 100, Label: "İyi", Description: "Ortalamanın üzerinde"}, res.Scores.Overall)
	assert.Equal(t, "Orta", res.Scores.DigitalPresence.Label)
	assert.Equal(t, 100.0, res.Scores.SEO.Score)
	assert.Equal(t, 0.0, res.Scores.SocialMedia.Score)
	assert.Equal(t, 77.0, res.Scores.Security.Score)

	// The structured Turkish list wins over the flat English one.
	assert.Equal(t, []domain.Item{{Title: "Yerel bilinirlik", Description: "Bölgede tanınıyor"}}, res.Strengths)
	assert.Empty(t, res.Weaknesses)

	assert.Equal(t, []domain.RoadmapStep{{Action: "SSL sertifikası al", Rationale: "Güven"}}, res.Phase(domain.HorizonImmediate).Steps)
	assert.Equal(t, []domain.RoadmapStep{{Action: "İçerik takvimi", Rationale: "SEO"}}, res.Phase(domain.HorizonNearTerm).Steps)
	assert.Equal(t, []domain.RoadmapStep{{Action: "Pazar yeri entegrasyonu"}}, res.Phase(domain.HorizonLongTerm).Steps)

	require.NotNil(t, res.Social)
	assert.Equal(t, []domain.SocialProfile{
		{Platform: "facebook", URL: "https://facebook.com/ege", Active: true},
		{Platform: "instagram", URL: "https://instagram.com/ege", Active: false},
		{Platform: "linkedin", URL: "", Active: false},
		{Platform: "youtube", URL: "https://youtube.com/@ege", Active: true},
	}, res.Social.Profiles)
	assert.Nil(t, res.Technical)
	assert.Nil(t, res.Compliance)
}

func TestNormalizeRoadmapShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want [3]int
	}{
		{"flat list goes to immediate", `{"roadmap":["a","b","c"]}`, [3]int{3, 0, 0}},
		{"near-term keyed", `{"yol_haritasi":{"kisa_vadeli":["a"],"orta_vadeli":["b","c"],"uzun_vadeli":[]}}`, [3]int{1, 2, 0}},
		{"immediate keyed", `{"roadmap":{"immediate":["a"],"short_term":["b"],"long_term":["c","d"]}}`, [3]int{1, 1, 2}},
		{"immediate keyed with short and medium", `{"yol_haritasi":{"hemen":["a"],"kisa_vade":["b"],"orta_vade":["c"],"uzun_vade":["d"]}}`, [3]int{1, 2, 1}},
		{"no horizon keys", `{"roadmap":{"steps":[{"action":"a"},{"eylem":"b"}]}}`, [3]int{2, 0, 0}},
		{"single string", `{"roadmap":"just one thing"}`, [3]int{1, 0, 0}},
		{"unknown object", `{"roadmap":{"foo":"bar"}}`, [3]int{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize([]byte(tt.raw))
			got := [3]int{len(res.Roadmap[0].Steps), len(res.Roadmap[1].Steps), len(res.Roadmap[2].Steps)}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeUnwrapsEnvelopes(t *testing.T) {
	tests := map[string]string{
		"double encoded": `"{\"scores\":{\"overall\":40}}"`,
		"array wrapped":  `[{"scores":{"overall":40}}]`,
		"result key":     `{"result":{"scores":{"overall":40}}}`,
		"output string":  `{"output":"{\"genel_skor\":40}"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 40.0, Normalize([]byte(raw)).Scores.Overall.Score)
		})
	}
}

func TestNormalizeRepairsBrokenJSON(t *testing.T) {
	res := Normalize([]byte(`{"company_name": "Broken Ltd", "scores": {"overall": 50,}`))
	assert.Equal(t, "Broken Ltd", res.Company.Name)
	assert.Equal(t, 50.0, res.Scores.Overall.Score)

	escaped := Normalize([]byte(`{"company_name": "Quote \"Ltd\"\tCo", "scores": {"overall": 50,}`))
	assert.Equal(t, "Quote \"Ltd\"\tCo", escaped.Company.Name)
}

func TestNormalizeMalformedEscapesTerminate(t *testing.T) {
	doubleEncoded, err := json.Marshal(`{"a":"[1,[\,"-1}`)
	require.NoError(t, err)
	require.True(t, json.Valid(doubleEncoded))

	inputs := map[string][]byte{
		"double encoded":     doubleEncoded,
		"invalid escape":     []byte(`"x,\,"-`),
		"escaped backslash":  []byte(`\"x\\,"-`),
		"deep nesting":       []byte(strings.Repeat("[", 100000)),
		"trailing backslash": []byte(`{"a":"b\`),
		"short unicode":      []byte(`{"a":"\u12,"-}`),
	}
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				HasContent(raw)
				Normalize(raw)
			})
		})
	}
}

func TestHideEscapes(t *testing.T) {
	hidden := hideEscapes(`a\"b\\c\nd\u00e9e\,f\`)
	assert.NotContains(t, hidden, `\`)
	assert.Equal(t, `a\"b\\c\nd\u00e9e,f`, restoreEscapes(hidden))
	assert.Equal(t, "plain", hideEscapes("plain"))
}

func TestExtractURL(t *testing.T) {
	assert.Equal(t, "https://x.example", ExtractURL("  https://x.example "))
	assert.Equal(t, "https://x.example", ExtractURL(map[string]any{"url": "https://x.example"}))
	assert.Equal(t, "https://x.example", ExtractURL(map[string]any{"link": "https://x.example"}))
	assert.Equal(t, "", ExtractURL(nil))
	assert.Equal(t, "", ExtractURL(12))
	assert.Equal(t, "", ExtractURL(map[string]any{"durum": "aktif"}))
}

func TestDetectAndHasContent(t *testing.T) {
	assert.Equal(t, DialectLegacy, DetectRaw(loadFixture(t, "legacy.json")))
	assert.Equal(t, DialectTurkishV1, DetectRaw(loadFixture(t, "tr_v1.json")))
	assert.Equal(t, DialectTurkishV2, DetectRaw(loadFixture(t, "tr_v2.json")))
	assert.Equal(t, DialectUnknown, DetectRaw([]byte(`{"hello":"world"}`)))

	assert.True(t, HasContent([]byte(`{"a":1}`)))
	assert.True(t, HasContent([]byte(`"{\"a\":1}"`)))
	assert.False(t, HasContent([]byte(`{}`)))
	assert.False(t, HasContent([]byte(`null`)))
	assert.False(t, HasContent(nil))
	assert.False(t, HasContent([]byte(`[]`)))
}
