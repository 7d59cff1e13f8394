package domain

// Category identifies one of the fixed score categories of a report.
type Category string

const (
	CategoryOverall         Category = "overall"
	CategoryDigitalPresence Category = "digital_presence"
	CategoryWebPerformance  Category = "web_performance"
	CategorySEO             Category = "seo"
	CategorySocialMedia     Category = "social_media"
	CategorySecurity        Category = "security"
	CategoryCompliance      Category = "compliance"
)

// Categories lists every score category in display order.
var Categories = []Category{
	CategoryOverall,
	CategoryDigitalPresence,
	CategoryWebPerformance,
	CategorySEO,
	CategorySocialMedia,
	CategorySecurity,
	CategoryCompliance,
}

// DefaultLabel is the label used when the payload does not supply one.
func (c Category) DefaultLabel() string {
	switch c {
	case CategoryOverall:
		return "Overall"
	case CategoryDigitalPresence:
		return "Digital Presence"
	case CategoryWebPerformance:
		return "Web Performance"
	case CategorySEO:
		return "SEO"
	case CategorySocialMedia:
		return "Social Media"
	case CategorySecurity:
		return "Security"
	case CategoryCompliance:
		return "Compliance"
	default:
		return string(c)
	}
}

// MaxScore is the canonical upper bound of every score.
const MaxScore = 100

// Score is a single category score, always within [0, MaxScore].
type Score struct {
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
}

// Scores holds every category score of a report.
type Scores struct {
	Overall         Score `json:"overall"`
	DigitalPresence Score `json:"digital_presence"`
	WebPerformance  Score `json:"web_performance"`
	SEO             Score `json:"seo"`
	SocialMedia     Score `json:"social_media"`
	Security        Score `json:"security"`
	Compliance      Score `json:"compliance"`
}

// Get returns the score of a category.
func (s *Scores) Get(c Category) Score {
	if p := s.ref(c); p != nil {
		return *p
	}
	return Score{}
}

// Set stores the score of a category. Unknown categories are ignored.
func (s *Scores) Set(c Category, v Score) {
	if p := s.ref(c); p != nil {
		*p = v
	}
}

func (s *Scores) ref(c Category) *Score {
	switch c {
	case CategoryOverall:
		return &s.Overall
	case CategoryDigitalPresence:
		return &s.DigitalPresence
	case CategoryWebPerformance:
		return &s.WebPerformance
	case CategorySEO:
		return &s.SEO
	case CategorySocialMedia:
		return &s.SocialMedia
	case CategorySecurity:
		return &s.Security
	case CategoryCompliance:
		return &s.Compliance
	default:
		return nil
	}
}

// Item is a structured strength or weakness.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// String flattens the item for display.
func (i Item) String() string {
	if i.Description == "" {
		return i.Title
	}
	if i.Title == "" {
		return i.Description
	}
	return i.Title + ": " + i.Description
}

// FindingKind tags a finding.
type FindingKind string

const (
	FindingPositive    FindingKind = "positive"
	FindingWarning     FindingKind = "warning"
	FindingOpportunity FindingKind = "opportunity"
	FindingCritical    FindingKind = "critical"
)

// Finding is a tagged observation from the analysis.
type Finding struct {
	Kind        FindingKind `json:"kind"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
}

// Horizon is one of the three fixed roadmap buckets.
type Horizon string

const (
	HorizonImmediate Horizon = "immediate"
	HorizonNearTerm  Horizon = "near_term"
	HorizonLongTerm  Horizon = "long_term"
)

// Horizons lists the roadmap buckets in order.
var Horizons = []Horizon{HorizonImmediate, HorizonNearTerm, HorizonLongTerm}

// Label returns the display label of the horizon.
func (h Horizon) Label() string {
	switch h {
	case HorizonImmediate:
		return "Immediate (0-3 months)"
	case HorizonNearTerm:
		return "Near term (3-6 months)"
	case HorizonLongTerm:
		return "Long term (6-12 months)"
	default:
		return string(h)
	}
}

// RoadmapStep is a single roadmap action.
type RoadmapStep struct {
	Action    string `json:"action"`
	Rationale string `json:"rationale,omitempty"`
}

// RoadmapPhase is the ordered steps of one horizon.
type RoadmapPhase struct {
	Horizon Horizon       `json:"horizon"`
	Steps   []RoadmapStep `json:"steps"`
}

// ServicePackage is a recommended offering.
type ServicePackage struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// TechnicalHealth is the site performance snapshot.
type TechnicalHealth struct {
	MobileScore            float64 `json:"mobile_score"`
	DesktopScore           float64 `json:"desktop_score"`
	FirstContentfulPaint   string  `json:"first_contentful_paint,omitempty"`
	LargestContentfulPaint string  `json:"largest_contentful_paint,omitempty"`
	SSLEnabled             bool    `json:"ssl_enabled"`
}

// ComplianceSnapshot summarizes legal compliance checks.
type ComplianceSnapshot struct {
	DataProtection bool   `json:"data_protection"`
	CookieConsent  bool   `json:"cookie_consent"`
	PrivacyPolicy  bool   `json:"privacy_policy"`
	Notes          string `json:"notes,omitempty"`
}

// SocialProfile is a single platform presence.
type SocialProfile struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	Active   bool   `json:"active"`
}

// SocialPresence lists profiles in fixed platform order.
type SocialPresence struct {
	Profiles []SocialProfile `json:"profiles"`
}

// ActiveCount returns the number of active profiles.
func (s *SocialPresence) ActiveCount() int {
	n := 0
	for _, p := range s.Profiles {
		if p.Active {
			n++
		}
	}
	return n
}

// Company is the report's subject block.
type Company struct {
	Name             string `json:"name"`
	Website          string `json:"website,omitempty"`
	Sector           string `json:"sector,omitempty"`
	ExecutiveSummary string `json:"executive_summary,omitempty"`
}

// AnalysisResult is the canonical, dialect independent report. Optional
// snapshots are nil when the payload did not carry them.
type AnalysisResult struct {
	Company             Company             `json:"company"`
	Scores              Scores              `json:"scores"`
	Strengths           []Item              `json:"strengths"`
	Weaknesses          []Item              `json:"weaknesses"`
	Findings            []Finding           `json:"findings"`
	Roadmap             []RoadmapPhase      `json:"roadmap"`
	RecommendedServices []ServicePackage    `json:"recommended_services"`
	Technical           *TechnicalHealth    `json:"technical,omitempty"`
	Compliance          *ComplianceSnapshot `json:"compliance,omitempty"`
	Social              *SocialPresence     `json:"social,omitempty"`
}

// Phase returns the roadmap phase for a horizon, or an empty phase.
func (r *AnalysisResult) Phase(h Horizon) RoadmapPhase {
	for _, p := range r.Roadmap {
		if p.Horizon == h {
			return p
		}
	}
	return RoadmapPhase{Horizon: h}
}
