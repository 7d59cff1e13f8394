// Package normalize maps analysis payloads of every known schema dialect into
// the canonical domain.AnalysisResult.
//
// Normalization is total: any input, including invalid JSON, yields a fully
// defaulted result. Each logical field is resolved by an ordered list of
// aliases; the first alias present wins and dialects are never merged for the
// same field.
package normalize

import (
	"math"

	"github.com/ashureev/maturity-report/internal/domain"
)

// Normalize decodes raw and returns the canonical result.
func Normalize(raw []byte) domain.AnalysisResult {
	return build(unwrap(parse(raw)))
}

// NormalizeValue normalizes an already decoded value (maps, slices, scalars or
// any JSON-marshalable Go value).
func NormalizeValue(v any) domain.AnalysisResult {
	return build(unwrap(fromValue(v)))
}

// ExtractURL returns the URL carried by a social media entry, which may be a
// bare string or an object. It always returns a string.
func ExtractURL(v any) string {
	return extractURL(fromValue(v))
}

var (
	companyKeys = []string{"firma_adi", "firma", "company_name", "companyName", "company", "name"}
	websiteKeys = []string{"web_sitesi", "website", "web_site", "url", "site"}
	sectorKeys  = []string{"sektor", "sector", "industry"}
	summaryKeys = []string{"yonetici_ozeti", "ozet", "executive_summary", "executiveSummary", "summary", "genel_degerlendirme"}

	scoreContainerKeys = []string{"skorlar", "puanlar", "scores", "score_breakdown"}

	categoryKeys = map[domain.Category][]string{
		domain.CategoryOverall:         {"genel", "genel_skor", "overall", "total", "toplam"},
		domain.CategoryDigitalPresence: {"dijital_varlik", "dijital_olgunluk", "digital_presence", "digital_maturity"},
		domain.CategoryWebPerformance:  {"web_performansi", "web_sitesi", "web_performance", "website", "performance"},
		domain.CategorySEO:             {"seo"},
		domain.CategorySocialMedia:     {"sosyal_medya", "social_media", "social"},
		domain.CategorySecurity:        {"guvenlik", "security"},
		domain.CategoryCompliance:      {"uyumluluk", "yasal_uyumluluk", "compliance"},
	}
	overallTopLevelKeys = []string{"genel_skor", "overall_score", "overallScore", "dijital_olgunluk_skoru"}

	strengthKeys = []string{"guclu_yonler", "guclu_yanlar", "strengths"}
	weaknessKeys = []string{"zayif_yonler", "gelistirilmesi_gereken_alanlar", "weaknesses"}
	findingKeys  = []string{"bulgular", "tespitler", "findings", "insights"}
	roadmapKeys  = []string{"yol_haritasi", "eylem_plani", "roadmap", "action_plan"}
	serviceKeys  = []string{"onerilen_hizmetler", "onerilen_paketler", "hizmet_onerileri", "recommended_services", "recommended_packages", "services"}

	technicalKeys  = []string{"teknik_durum", "teknik_analiz", "technical", "technical_health"}
	complianceKeys = []string{"uyumluluk_durumu", "yasal_uyumluluk", "uyumluluk", "compliance_status", "compliance"}
	socialKeys     = []string{"sosyal_medya", "sosyal_medya_hesaplari", "social_media", "social_profiles", "social"}

	titleKeys       = []string{"baslik", "title", "ad", "name", "konu"}
	descriptionKeys = []string{"aciklama", "description", "detay", "detail", "text"}
)

func build(n node) domain.AnalysisResult {
	info := firstObject(n, "firma_bilgileri", "company_info", "companyInfo", "company")

	res := domain.AnalysisResult{
		Company: domain.Company{
			Name:             firstText(info, n, companyKeys...),
			Website:          firstText(info, n, websiteKeys...),
			Sector:           firstText(info, n, sectorKeys...),
			ExecutiveSummary: n.first(summaryKeys...).text(),
		},
		Scores:              buildScores(n),
		Strengths:           buildItems(n, strengthKeys),
		Weaknesses:          buildItems(n, weaknessKeys),
		Findings:            buildFindings(n.first(findingKeys...)),
		Roadmap:             buildRoadmap(n.first(roadmapKeys...)),
		RecommendedServices: buildServices(n.first(serviceKeys...)),
		Technical:           buildTechnical(firstObject(n, technicalKeys...)),
		Compliance:          buildCompliance(firstObject(n, complianceKeys...)),
		Social:              buildSocial(firstCollection(n, socialKeys...)),
	}
	return res
}

// firstText reads the first scalar text among keys, preferring the nested
// info block over the top level. Objects (such as {"name": ...}) are read
// through their name/title keys.
func firstText(info, top node, keys ...string) string {
	for _, src := range []node{info, top} {
		for _, k := range keys {
			v := src.get(k)
			switch v.kind {
			case kindString, kindNumber:
				if t := v.text(); t != "" {
					return t
				}
			case kindObject:
				if t := v.first("name", "ad", "title").text(); t != "" {
					return t
				}
			case kindMissing, kindNull, kindBool, kindArray:
			}
		}
	}
	return ""
}

func firstObject(n node, keys ...string) node {
	for _, k := range keys {
		if v := n.get(k); v.kind == kindObject && len(v.obj) > 0 {
			return v
		}
	}
	return missing
}

func firstCollection(n node, keys ...string) node {
	for _, k := range keys {
		v := n.get(k)
		if (v.kind == kindObject && len(v.obj) > 0) || (v.kind == kindArray && len(v.arr) > 0) {
			return v
		}
	}
	return missing
}

// scoreValue is the decoded form of a raw score: a bare number or an object
// with score metadata.
type scoreValue struct {
	tag         scoreTag
	score       float64
	maxScore    float64
	label       string
	description string
}

type scoreTag int

const (
	scoreAbsent scoreTag = iota
	scoreNumber
	scoreObject
)

func decodeScore(n node) scoreValue {
	switch n.kind {
	case kindNumber, kindString:
		if f, ok := n.number(); ok {
			return scoreValue{tag: scoreNumber, score: f, maxScore: domain.MaxScore}
		}
		return scoreValue{tag: scoreAbsent}
	case kindObject:
		sv := scoreValue{tag: scoreObject, maxScore: domain.MaxScore}
		if f, ok := n.first("score", "skor", "puan", "value", "deger").number(); ok {
			sv.score = f
		}
		if f, ok := n.first("maxScore", "max_score", "maks_skor", "maksimum", "max").number(); ok && f > 0 {
			sv.maxScore = f
		}
		sv.label = n.first("label", "etiket", "seviye", "level").text()
		sv.description = n.first("description", "aciklama", "yorum", "comment").text()
		return sv
	case kindMissing, kindNull, kindBool, kindArray:
		return scoreValue{tag: scoreAbsent}
	}
	return scoreValue{tag: scoreAbsent}
}

func (sv scoreValue) canonical(c domain.Category) domain.Score {
	out := domain.Score{MaxScore: domain.MaxScore, Label: c.DefaultLabel()}
	switch sv.tag {
	case scoreAbsent:
		return out
	case scoreNumber, scoreObject:
		score := sv.score
		if sv.maxScore > 0 && sv.maxScore != domain.MaxScore {
			score = score / sv.maxScore * domain.MaxScore
		}
		out.Score = clampScore(score)
		if sv.label != "" {
			out.Label = sv.label
		}
		out.Description = sv.description
	}
	return out
}

func clampScore(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > domain.MaxScore {
		return domain.MaxScore
	}
	return math.Round(f*10) / 10
}

func buildScores(n node) domain.Scores {
	var scores domain.Scores
	container := missing
	for _, k := range scoreContainerKeys {
		if v := n.get(k); v.kind == kindObject {
			container = v
			break
		}
	}
	for _, c := range domain.Categories {
		sv := decodeScore(container.first(categoryKeys[c]...))
		if sv.tag == scoreAbsent && c == domain.CategoryOverall {
			sv = decodeScore(n.first(overallTopLevelKeys...))
		}
		scores.Set(c, sv.canonical(c))
	}
	return scores
}

// buildItems prefers the structured object-array form under any alias and
// only falls back to a flat string list when no structured list exists.
func buildItems(n node, keys []string) []domain.Item {
	for _, k := range keys {
		v := n.get(k)
		if v.kind == kindArray && hasObjectItem(v) {
			return collectItems(v)
		}
	}
	for _, k := range keys {
		v := n.get(k)
		if v.kind == kindArray && len(v.arr) > 0 {
			return collectItems(v)
		}
		if v.kind == kindString && v.text() != "" {
			return []domain.Item{{Title: v.text()}}
		}
	}
	return []domain.Item{}
}

func hasObjectItem(v node) bool {
	for _, item := range v.arr {
		if item.kind == kindObject {
			return true
		}
	}
	return false
}

func collectItems(v node) []domain.Item {
	items := make([]domain.Item, 0, len(v.arr))
	for _, raw := range v.arr {
		var it domain.Item
		switch raw.kind {
		case kindObject:
			it = domain.Item{
				Title:       raw.first(titleKeys...).text(),
				Description: raw.first(descriptionKeys...).text(),
			}
		case kindString, kindNumber:
			it = domain.Item{Title: raw.text()}
		case kindMissing, kindNull, kindBool, kindArray:
			continue
		}
		if it.Title == "" && it.Description == "" {
			continue
		}
		items = append(items, it)
	}
	return items
}

var findingKinds = map[string]domain.FindingKind{
	"positive": domain.FindingPositive, "olumlu": domain.FindingPositive,
	"pozitif": domain.FindingPositive, "basari": domain.FindingPositive,
	"success": domain.FindingPositive, "good": domain.FindingPositive,
	"iyi": domain.FindingPositive, "strength": domain.FindingPositive,

	"warning": domain.FindingWarning, "uyari": domain.FindingWarning,
	"dikkat": domain.FindingWarning, "orta": domain.FindingWarning,
	"info": domain.FindingWarning,

	"opportunity": domain.FindingOpportunity, "firsat": domain.FindingOpportunity,
	"oneri": domain.FindingOpportunity, "suggestion": domain.FindingOpportunity,

	"critical": domain.FindingCritical, "kritik": domain.FindingCritical,
	"negatif": domain.FindingCritical, "olumsuz": domain.FindingCritical,
	"risk": domain.FindingCritical, "error": domain.FindingCritical,
	"hata": domain.FindingCritical,
}

func findingKind(v node) domain.FindingKind {
	if k, ok := findingKinds[foldWord(v.text())]; ok {
		return k
	}
	return domain.FindingWarning
}

func buildFindings(v node) []domain.Finding {
	out := []domain.Finding{}
	if v.kind != kindArray {
		return out
	}
	for _, raw := range v.arr {
		var f domain.Finding
		switch raw.kind {
		case kindObject:
			f = domain.Finding{
				Kind:        findingKind(raw.first("tip", "tur", "type", "kind", "kategori", "category", "durum", "status")),
				Title:       raw.first(titleKeys...).text(),
				Description: raw.first(descriptionKeys...).text(),
			}
		case kindString:
			f = domain.Finding{Kind: domain.FindingWarning, Title: raw.text()}
		case kindMissing, kindNull, kindBool, kindNumber, kindArray:
			continue
		}
		if f.Title == "" && f.Description == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func buildServices(v node) []domain.ServicePackage {
	out := []domain.ServicePackage{}
	if v.kind != kindArray {
		return out
	}
	for _, raw := range v.arr {
		var sp domain.ServicePackage
		switch raw.kind {
		case kindObject:
			sp = domain.ServicePackage{
				Name:        raw.first("paket_adi", "hizmet_adi", "paket", "hizmet", "name", "title", "baslik", "ad").text(),
				Description: raw.first(descriptionKeys...).text(),
				Priority:    raw.first("oncelik", "priority").text(),
			}
		case kindString:
			sp = domain.ServicePackage{Name: raw.text()}
		case kindMissing, kindNull, kindBool, kindNumber, kindArray:
			continue
		}
		if sp.Name == "" {
			continue
		}
		out = append(out, sp)
	}
	return out
}

func buildTechnical(v node) *domain.TechnicalHealth {
	if v.kind != kindObject {
		return nil
	}
	t := &domain.TechnicalHealth{
		MobileScore:            decodeScore(v.first("mobil_skor", "mobil", "mobile_score", "mobile", "mobil_performans")).canonical(domain.CategoryWebPerformance).Score,
		DesktopScore:           decodeScore(v.first("masaustu_skor", "masaustu", "desktop_score", "desktop", "masaustu_performans")).canonical(domain.CategoryWebPerformance).Score,
		FirstContentfulPaint:   paintMetric(v.first("fcp", "first_contentful_paint", "ilk_icerik_boyama")),
		LargestContentfulPaint: paintMetric(v.first("lcp", "largest_contentful_paint", "en_buyuk_icerik_boyama")),
	}
	if ok, known := v.first("ssl", "ssl_durumu", "ssl_status", "ssl_enabled", "https").truthy(); known {
		t.SSLEnabled = ok
	}
	return t
}

// paintMetric keeps textual timings as given and renders bare numbers as
// seconds when they look like seconds, milliseconds otherwise.
func paintMetric(v node) string {
	switch v.kind {
	case kindString:
		return v.text()
	case kindNumber:
		if v.n >= 100 {
			return v.text() + "ms"
		}
		return v.text() + "s"
	case kindObject:
		return paintMetric(v.first("value", "deger", "display", "displayValue"))
	case kindMissing, kindNull, kindBool, kindArray:
		return ""
	}
	return ""
}

func buildCompliance(v node) *domain.ComplianceSnapshot {
	if v.kind != kindObject {
		return nil
	}
	c := &domain.ComplianceSnapshot{Notes: v.first("notlar", "notes", "aciklama", "ozet", "summary").text()}
	c.DataProtection, _ = v.first("kvkk", "kvkk_uyumu", "gdpr", "data_protection").truthy()
	c.CookieConsent, _ = v.first("cerez_politikasi", "cerez_onayi", "cookie_consent", "cookie_policy", "cookies").truthy()
	c.PrivacyPolicy, _ = v.first("gizlilik_politikasi", "privacy_policy", "privacy").truthy()
	return c
}

var platformKeys = []struct {
	name    string
	aliases []string
}{
	{"facebook", []string{"facebook", "fb"}},
	{"instagram", []string{"instagram", "ig"}},
	{"linkedin", []string{"linkedin"}},
	{"twitter", []string{"twitter", "x"}},
	{"youtube", []string{"youtube"}},
	{"tiktok", []string{"tiktok"}},
}

func buildSocial(v node) *domain.SocialPresence {
	var byPlatform node
	switch v.kind {
	case kindObject:
		byPlatform = v
		if inner := v.first("platformlar", "platforms", "hesaplar", "accounts"); inner.kind == kindObject || inner.kind == kindArray {
			return buildSocial(inner)
		}
	case kindArray:
		m := map[string]any{}
		for _, item := range v.arr {
			if item.kind != kindObject {
				continue
			}
			name := foldWord(item.first("platform", "ad", "name").text())
			if name != "" {
				m[name] = nodeToValue(item)
			}
		}
		byPlatform = objectNode(m)
	case kindMissing, kindNull, kindBool, kindNumber, kindString:
		return nil
	}

	sp := &domain.SocialPresence{Profiles: []domain.SocialProfile{}}
	for _, p := range platformKeys {
		entry := byPlatform.first(p.aliases...)
		if !entry.present() {
			continue
		}
		url := extractURL(entry)
		active := url != ""
		if entry.kind == kindObject {
			if ok, known := entry.first("status", "durum", "active", "aktif").truthy(); known {
				active = ok
			}
		}
		sp.Profiles = append(sp.Profiles, domain.SocialProfile{Platform: p.name, URL: url, Active: active})
	}
	if len(sp.Profiles) == 0 {
		return nil
	}
	return sp
}

func extractURL(v node) string {
	switch v.kind {
	case kindString:
		return v.text()
	case kindObject:
		return v.first("url", "link", "adres", "href", "profil", "profile").text()
	case kindMissing, kindNull, kindBool, kindNumber, kindArray:
		return ""
	}
	return ""
}

// nodeToValue converts a node back into plain Go values.
func nodeToValue(n node) any {
	switch n.kind {
	case kindBool:
		return n.b
	case kindNumber:
		return n.n
	case kindString:
		return n.s
	case kindArray:
		out := make([]any, 0, len(n.arr))
		for _, item := range n.arr {
			out = append(out, nodeToValue(item))
		}
		return out
	case kindObject:
		out := make(map[string]any, len(n.obj))
		for k, item := range n.obj {
			out[k] = nodeToValue(item)
		}
		return out
	case kindMissing, kindNull:
		return nil
	}
	return nil
}
