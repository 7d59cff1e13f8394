package normalize

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// kind tags a decoded JSON value. Every read in this package switches on it.
type kind int

const (
	kindMissing kind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

// node is a JSON value decoded once at the package boundary.
type node struct {
	kind kind
	b    bool
	n    float64
	s    string
	arr  []node
	obj  map[string]node
	// folded maps a folded key to the original key, for tolerant lookups.
	folded map[string]string
}

var missing = node{kind: kindMissing}

func fromValue(v any) node {
	switch t := v.(type) {
	case nil:
		return node{kind: kindNull}
	case bool:
		return node{kind: kindBool, b: t}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return node{kind: kindString, s: t.String()}
		}
		return numberNode(f)
	case float64:
		return numberNode(t)
	case float32:
		return numberNode(float64(t))
	case int:
		return numberNode(float64(t))
	case int64:
		return numberNode(float64(t))
	case int32:
		return numberNode(float64(t))
	case string:
		return node{kind: kindString, s: t}
	case []any:
		arr := make([]node, 0, len(t))
		for _, item := range t {
			arr = append(arr, fromValue(item))
		}
		return node{kind: kindArray, arr: arr}
	case []map[string]any:
		arr := make([]node, 0, len(t))
		for _, item := range t {
			arr = append(arr, fromValue(item))
		}
		return node{kind: kindArray, arr: arr}
	case []string:
		arr := make([]node, 0, len(t))
		for _, item := range t {
			arr = append(arr, node{kind: kindString, s: item})
		}
		return node{kind: kindArray, arr: arr}
	case map[string]any:
		return objectNode(t)
	case json.RawMessage:
		return parse(t)
	case []byte:
		return parse(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return missing
		}
		return parse(data)
	}
}

func numberNode(f float64) node {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return node{kind: kindNull}
	}
	return node{kind: kindNumber, n: f}
}

func objectNode(m map[string]any) node {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	obj := make(map[string]node, len(m))
	folded := make(map[string]string, len(m))
	for _, k := range keys {
		obj[k] = fromValue(m[k])
		fk := foldKey(k)
		if _, taken := folded[fk]; !taken {
			folded[fk] = k
		}
	}
	return node{kind: kindObject, obj: obj, folded: folded}
}

func (n node) present() bool {
	return n.kind != kindMissing && n.kind != kindNull
}

// get returns the value under key, matching exactly first and then on the
// folded key (case, Turkish letters, separators).
func (n node) get(key string) node {
	if n.kind != kindObject {
		return missing
	}
	if v, ok := n.obj[key]; ok {
		return v
	}
	if orig, ok := n.folded[foldKey(key)]; ok {
		return n.obj[orig]
	}
	return missing
}

// first returns the first present value among keys, in order.
func (n node) first(keys ...string) node {
	for _, k := range keys {
		if v := n.get(k); v.present() {
			return v
		}
	}
	return missing
}

// path walks nested objects.
func (n node) path(keys ...string) node {
	cur := n
	for _, k := range keys {
		cur = cur.get(k)
		if !cur.present() {
			return missing
		}
	}
	return cur
}

func (n node) hasAny(keys ...string) bool {
	return n.first(keys...).present()
}

func (n node) isEmptyObject() bool {
	return n.kind != kindObject || len(n.obj) == 0
}

// text renders scalars as a trimmed string.
func (n node) text() string {
	switch n.kind {
	case kindString:
		return strings.TrimSpace(n.s)
	case kindNumber:
		return strconv.FormatFloat(n.n, 'f', -1, 64)
	case kindBool:
		return strconv.FormatBool(n.b)
	case kindMissing, kindNull, kindArray, kindObject:
		return ""
	}
	return ""
}

// number reads a numeric value, accepting numeric strings such as "72",
// "72.5", "72,5" and "72%".
func (n node) number() (float64, bool) {
	switch n.kind {
	case kindNumber:
		return n.n, true
	case kindString:
		s := strings.TrimSpace(n.s)
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case kindMissing, kindNull, kindBool, kindArray, kindObject:
		return 0, false
	}
	return 0, false
}

var (
	truthyWords = map[string]bool{
		"true": true, "yes": true, "evet": true, "var": true, "aktif": true,
		"active": true, "valid": true, "gecerli": true, "enabled": true,
		"mevcut": true, "uyumlu": true, "ok": true, "1": true, "on": true,
	}
	falsyWords = map[string]bool{
		"false": true, "no": true, "hayir": true, "yok": true, "pasif": true,
		"inactive": true, "invalid": true, "gecersiz": true, "disabled": true,
		"eksik": true, "0": true, "off": true, "uyumsuz": true, "none": true,
	}
)

// truthy reads a boolean-ish value. The second result is false when the value
// carries no recognizable truth value.
func (n node) truthy() (bool, bool) {
	switch n.kind {
	case kindBool:
		return n.b, true
	case kindNumber:
		return n.n != 0, true
	case kindString:
		w := foldWord(n.s)
		if truthyWords[w] {
			return true, true
		}
		if falsyWords[w] {
			return false, true
		}
		return false, false
	case kindObject:
		return n.first("status", "durum", "active", "aktif", "enabled", "value").truthy()
	case kindMissing, kindNull, kindArray:
		return false, false
	}
	return false, false
}

var turkishFolder = strings.NewReplacer(
	"ı", "i", "İ", "i", "ş", "s", "Ş", "s", "ğ", "g", "Ğ", "g",
	"ü", "u", "Ü", "u", "ö", "o", "Ö", "o", "ç", "c", "Ç", "c",
)

// foldWord lowercases and transliterates Turkish letters.
func foldWord(s string) string {
	return strings.ToLower(turkishFolder.Replace(strings.TrimSpace(s)))
}

// foldKey additionally unifies separators and camelCase so that "maxScore",
// "max_score" and "Max-Score" compare equal.
func foldKey(s string) string {
	s = turkishFolder.Replace(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '-' || r == ' ' || r == '.' || r == '_':
			continue
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}
