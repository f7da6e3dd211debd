package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Style selects the source literal syntax used to render argument values.
type Style int

const (
	StyleJSON Style = iota
	StylePython
	StyleRuby
	StylePHP
	StyleSwift
	StyleJava
	StyleCSharp
	StyleKotlin
	StyleCpp
	StyleC
	StyleGo
	StyleRust
)

var languageStyles = map[string]Style{
	"python":     StylePython,
	"javascript": StyleJSON,
	"typescript": StyleJSON,
	"ruby":       StyleRuby,
	"php":        StylePHP,
	"swift":      StyleSwift,
	"java":       StyleJava,
	"csharp":     StyleCSharp,
	"kotlin":     StyleKotlin,
	"cpp":        StyleCpp,
	"c":          StyleC,
	"go":         StyleGo,
	"rust":       StyleRust,
}

// StyleFor returns the literal style for a normalized language name.
func StyleFor(language string) Style {
	if s, ok := languageStyles[language]; ok {
		return s
	}
	return StyleJSON
}

type elemKind int

const (
	kindEmpty elemKind = iota
	kindInt
	kindLong
	kindFloat
	kindString
	kindBool
	kindArray
	kindMixed
)

// RenderLiteral renders a decoded JSON value as a source literal in style.
func RenderLiteral(v interface{}, style Style) string {
	switch val := v.(type) {
	case nil:
		return nullLiteral(style)
	case bool:
		if style == StylePython {
			if val {
				return "True"
			}
			return "False"
		}
		if style == StyleC {
			if val {
				return "1"
			}
			return "0"
		}
		return strconv.FormatBool(val)
	case json.Number:
		return numberLiteral(val, style)
	case float64:
		return numberLiteral(json.Number(strconv.FormatFloat(val, 'f', -1, 64)), style)
	case int:
		return numberLiteral(json.Number(strconv.Itoa(val)), style)
	case string:
		return stringLiteral(val, style)
	case []interface{}:
		return arrayLiteral(val, style)
	case map[string]interface{}:
		return objectLiteral(val, style)
	default:
		return stringLiteral(fmt.Sprint(val), style)
	}
}

func nullLiteral(style Style) string {
	switch style {
	case StylePython:
		return "None"
	case StyleRuby, StyleSwift, StyleGo:
		return "nil"
	case StyleCpp:
		return "nullptr"
	case StyleC:
		return "NULL"
	case StyleRust:
		return "None"
	default:
		return "null"
	}
}

func numberLiteral(n json.Number, style Style) string {
	text := n.String()
	if numberKind(n) == kindLong {
		switch style {
		case StyleJava, StyleKotlin, StyleCSharp:
			return text + "L"
		case StyleCpp, StyleC:
			return text + "LL"
		}
	}
	return text
}

func numberKind(n json.Number) elemKind {
	text := n.String()
	if strings.ContainsAny(text, ".eE") {
		return kindFloat
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return kindFloat
	}
	if i > math.MaxInt32 || i < math.MinInt32 {
		return kindLong
	}
	return kindInt
}

// floatText forces a decimal point so integral values type as floating point.
func floatText(v interface{}) string {
	n, ok := v.(json.Number)
	if !ok {
		return fmt.Sprint(v)
	}
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		text += ".0"
	}
	return text
}

func stringLiteral(s string, style Style) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '$':
			if style == StylePHP || style == StyleKotlin {
				b.WriteString(`\$`)
			} else {
				b.WriteRune(r)
			}
		case '#':
			if style == StyleRuby {
				b.WriteString(`\#`)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	lit := b.String()
	if style == StyleRust {
		return "String::from(" + lit + ")"
	}
	return lit
}

func classify(values []interface{}) elemKind {
	kind := kindEmpty
	for _, v := range values {
		var k elemKind
		switch val := v.(type) {
		case json.Number:
			k = numberKind(val)
		case string:
			k = kindString
		case bool:
			k = kindBool
		case []interface{}:
			k = kindArray
		default:
			return kindMixed
		}
		switch {
		case kind == kindEmpty:
			kind = k
		case kind == k:
		case isNumeric(kind) && isNumeric(k):
			kind = widen(kind, k)
		default:
			return kindMixed
		}
	}
	return kind
}

func isNumeric(k elemKind) bool {
	return k == kindInt || k == kindLong || k == kindFloat
}

func widen(a, b elemKind) elemKind {
	if a == kindFloat || b == kindFloat {
		return kindFloat
	}
	return kindLong
}

func joinElems(values []interface{}, style Style, kind elemKind) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if kind == kindFloat && (style != StyleJSON && style != StylePython) {
			parts[i] = floatText(v)
			continue
		}
		if kind == kindLong {
			parts[i] = numberLiteral(json.Number(fmt.Sprint(v)), style)
			continue
		}
		parts[i] = RenderLiteral(v, style)
	}
	return strings.Join(parts, ",")
}

func arrayLiteral(values []interface{}, style Style) string {
	switch style {
	case StyleJava, StyleCSharp:
		return "new " + typedArrayName(values, style) + "{" + typedElems(values, style) + "}"
	case StyleGo:
		return goTypeName(values) + "{" + goElems(values) + "}"
	case StyleKotlin:
		return kotlinArray(values)
	case StyleRust:
		return "vec![" + joinElems(values, style, classify(values)) + "]"
	case StyleCpp:
		return "{" + joinElems(values, style, classify(values)) + "}"
	case StyleC:
		kind := classify(values)
		ctype := map[elemKind]string{kindInt: "int", kindLong: "long long", kindFloat: "double", kindString: "char*", kindBool: "int", kindEmpty: "int"}[kind]
		if ctype == "" {
			return stringLiteral(mustJSON(values), style)
		}
		return "(" + ctype + "[]){" + joinElems(values, style, kind) + "}"
	default:
		return "[" + joinElems(values, style, kindMixed) + "]"
	}
}

func scalarTypeName(kind elemKind, style Style) string {
	java := style == StyleJava
	switch kind {
	case kindInt, kindEmpty:
		return "int"
	case kindLong:
		return "long"
	case kindFloat:
		return "double"
	case kindString:
		if java {
			return "String"
		}
		return "string"
	case kindBool:
		if java {
			return "boolean"
		}
		return "bool"
	default:
		if java {
			return "Object"
		}
		return "object"
	}
}

// typedArrayName returns e.g. "int[]" or "int[][]" for Java and C#.
func typedArrayName(values []interface{}, style Style) string {
	kind := classify(values)
	if kind == kindArray {
		inner := "int[]"
		for _, v := range values {
			if sub, ok := v.([]interface{}); ok && len(sub) > 0 {
				inner = typedArrayName(sub, style)
				break
			}
		}
		return inner + "[]"
	}
	return scalarTypeName(kind, style) + "[]"
}

func typedElems(values []interface{}, style Style) string {
	kind := classify(values)
	if kind != kindArray {
		return joinElems(values, style, kind)
	}
	name := typedArrayName(values, style)
	inner := strings.TrimSuffix(name, "[]")
	parts := make([]string, len(values))
	for i, v := range values {
		sub, _ := v.([]interface{})
		parts[i] = "new " + inner + "{" + typedElems(sub, style) + "}"
	}
	return strings.Join(parts, ",")
}

func goTypeName(values []interface{}) string {
	switch kind := classify(values); kind {
	case kindInt, kindLong, kindEmpty:
		return "[]int"
	case kindFloat:
		return "[]float64"
	case kindString:
		return "[]string"
	case kindBool:
		return "[]bool"
	case kindArray:
		for _, v := range values {
			if sub, ok := v.([]interface{}); ok && len(sub) > 0 {
				return "[]" + goTypeName(sub)
			}
		}
		return "[][]int"
	default:
		return "[]interface{}"
	}
}

// goElems elides inner composite types, which Go permits inside a typed literal.
func goElems(values []interface{}) string {
	kind := classify(values)
	if kind != kindArray {
		return joinElems(values, StyleGo, kind)
	}
	parts := make([]string, len(values))
	for i, v := range values {
		sub, _ := v.([]interface{})
		parts[i] = "{" + goElems(sub) + "}"
	}
	return strings.Join(parts, ",")
}

func kotlinArray(values []interface{}) string {
	kind := classify(values)
	switch kind {
	case kindInt, kindEmpty:
		return "intArrayOf(" + joinElems(values, StyleKotlin, kind) + ")"
	case kindLong:
		return "longArrayOf(" + joinElems(values, StyleKotlin, kind) + ")"
	case kindFloat:
		return "doubleArrayOf(" + joinElems(values, StyleKotlin, kind) + ")"
	case kindBool:
		return "booleanArrayOf(" + joinElems(values, StyleKotlin, kind) + ")"
	default:
		return "arrayOf(" + joinElems(values, StyleKotlin, kind) + ")"
	}
}

func objectLiteral(obj map[string]interface{}, style Style) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var openTok, sep, closeTok string
	switch style {
	case StyleJSON, StylePython:
		openTok, sep, closeTok = "{", ": ", "}"
	case StyleRuby:
		openTok, sep, closeTok = "{", " => ", "}"
	case StylePHP:
		openTok, sep, closeTok = "[", " => ", "]"
	case StyleSwift:
		openTok, sep, closeTok = "[", ": ", "]"
	case StyleKotlin:
		openTok, sep, closeTok = "mapOf(", " to ", ")"
	case StyleGo:
		openTok, sep, closeTok = "map[string]interface{}{", ": ", "}"
	default:
		return stringLiteral(mustJSON(obj), style)
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = stringLiteral(k, style) + sep + RenderLiteral(obj[k], style)
	}
	return openTok + strings.Join(parts, ",") + closeTok
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
