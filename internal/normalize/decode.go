package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const (
	// maxUnwrapDepth bounds envelope peeling for double-encoded payloads.
	maxUnwrapDepth = 4

	// Input larger or deeper than this is not handed to the repairer.
	maxRepairBytes = 1 << 20
	maxRepairDepth = 256
)

// Escape sequences are swapped for private-use runes while the repairer
// runs. Backslash-free input keeps its string scanner from skipping past the
// retry index it computes, which otherwise recurses without bound.
const (
	escQuote     = '\U000F0000'
	escBackslash = '\U000F0001'
	escOther     = '\U000F0002'
)

// envelopeKeys wrap the report in some engine outputs.
var envelopeKeys = []string{"result", "analysis", "analiz", "analiz_sonucu", "rapor", "report", "data", "output"}

// parse decodes raw bytes into a node, repairing malformed JSON when possible.
// Undecodable input yields the missing node.
func parse(raw []byte) node {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return missing
	}
	if v, ok := decode(raw); ok {
		return fromValue(v)
	}
	if v, ok := repair(raw); ok {
		return fromValue(v)
	}
	return missing
}

// repair runs jsonrepair over input that is safe to give it and decodes the
// result.
func repair(raw []byte) (any, bool) {
	if len(raw) > maxRepairBytes || nestingDepth(raw) > maxRepairDepth {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(hideEscapes(string(raw)))
	if err != nil {
		return nil, false
	}
	return decode([]byte(restoreEscapes(repaired)))
}

// hideEscapes replaces every valid escape sequence with placeholder runes and
// drops backslashes that do not start one.
func hideEscapes(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			break
		}
		next := s[i+1]
		switch {
		case next == '"':
			b.WriteRune(escQuote)
			i++
		case next == '\\':
			b.WriteRune(escBackslash)
			i++
		case strings.IndexByte("/bfnrt", next) >= 0, next == 'u' && isHex4(s[i+2:]):
			b.WriteRune(escOther)
		}
	}
	return b.String()
}

func restoreEscapes(s string) string {
	if !strings.ContainsAny(s, string([]rune{escQuote, escBackslash, escOther})) {
		return s
	}
	return strings.NewReplacer(
		string(escQuote), `\"`,
		string(escBackslash), `\\`,
		string(escOther), `\`,
	).Replace(s)
}

func isHex4(s string) bool {
	if len(s) < 4 {
		return false
	}
	for i := range 4 {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// nestingDepth is the deepest bracket nesting in raw, string contents
// included. It only needs to be an upper bound.
func nestingDepth(raw []byte) int {
	depth, deepest := 0, 0
	for _, c := range raw {
		switch c {
		case '{', '[':
			depth++
			deepest = max(deepest, depth)
		case '}', ']':
			depth = max(depth-1, 0)
		}
	}
	return deepest
}

func decode(raw []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// unwrap peels transport envelopes until the report object is reached:
// JSON encoded as a string, single-element arrays, and wrapper objects whose
// only job is to hold the report.
func unwrap(n node) node {
	for range maxUnwrapDepth {
		switch n.kind {
		case kindString:
			s := strings.TrimSpace(n.s)
			if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
				return n
			}
			n = parse([]byte(s))
		case kindArray:
			if len(n.arr) == 0 {
				return n
			}
			next := n.arr[0]
			if next.kind != kindObject && next.kind != kindString {
				return n
			}
			n = next
		case kindObject:
			if looksLikeReport(n) {
				return n
			}
			inner := n.first(envelopeKeys...)
			if inner.kind != kindObject && inner.kind != kindString && inner.kind != kindArray {
				return n
			}
			n = inner
		case kindMissing, kindNull, kindBool, kindNumber:
			return n
		}
	}
	return n
}

func looksLikeReport(n node) bool {
	return Detect(n) != DialectUnknown
}
