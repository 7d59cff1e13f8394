package normalize

// Dialect names a known raw result schema.
type Dialect string

const (
	DialectUnknown   Dialect = "unknown"
	DialectLegacy    Dialect = "legacy"
	DialectTurkishV1 Dialect = "tr-v1"
	DialectTurkishV2 Dialect = "tr-v2"
)

// Detect reports which dialect a payload most resembles. It is informational
// only; Normalize resolves each field independently of the detected dialect.
func Detect(n node) Dialect {
	if n.kind != kindObject {
		return DialectUnknown
	}
	switch {
	case n.hasAny("firma_bilgileri", "skorlar"):
		return DialectTurkishV2
	case n.hasAny("firma_adi", "puanlar", "genel_skor", "guclu_yonler", "zayif_yonler", "yol_haritasi", "yonetici_ozeti"):
		return DialectTurkishV1
	case n.hasAny("company_name", "companyName", "scores", "strengths", "weaknesses", "roadmap", "overall_score"):
		return DialectLegacy
	default:
		return DialectUnknown
	}
}

// DetectRaw is Detect over undecoded bytes.
func DetectRaw(raw []byte) Dialect {
	return Detect(unwrap(parse(raw)))
}

// HasContent reports whether raw holds a non-empty report object after
// envelopes are removed.
func HasContent(raw []byte) bool {
	n := unwrap(parse(raw))
	return n.kind == kindObject && len(n.obj) > 0
}
