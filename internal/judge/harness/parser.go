package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Arg is one argument of a parsed test input. Name is empty for positional values.
type Arg struct {
	Name  string
	Value interface{}
}

// ParsedInput is the argument list extracted from a test case input.
type ParsedInput struct {
	Raw  string
	Args []Arg

	// Degraded is set when the input could not be split and the whole
	// text was kept as a single string argument.
	Degraded    bool
	DegradeNote string
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

const argSeparators = ",\n"

// ParseInput accepts either a JSON array literal, whose elements become the
// arguments, or a list of `name = value` pairs separated by commas or
// newlines. Values are
// decoded as JSON and fall back to bare strings. Malformed input never fails;
// it degrades to one string argument holding the raw text.
func ParseInput(raw string) ParsedInput {
	out := ParsedInput{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out
	}

	if strings.HasPrefix(trimmed, "[") {
		if values, err := decodeJSON(trimmed); err == nil {
			if list, ok := values.([]interface{}); ok {
				out.Args = make([]Arg, 0, len(list))
				for _, v := range list {
					out.Args = append(out.Args, Arg{Value: v})
				}
				return out
			}
		}
	}

	parts, err := splitTopLevel(trimmed, argSeparators)
	if err != nil {
		return degrade(out, err)
	}
	out.Args = make([]Arg, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, valueText, err := splitAssignment(part)
		if err != nil {
			return degrade(out, err)
		}
		if valueText == "" {
			return degrade(out, fmt.Errorf("argument %q has no value", name))
		}
		out.Args = append(out.Args, Arg{Name: name, Value: decodeValue(valueText)})
	}
	return out
}

func degrade(in ParsedInput, cause error) ParsedInput {
	return ParsedInput{
		Raw:         in.Raw,
		Args:        []Arg{{Value: in.Raw}},
		Degraded:    true,
		DegradeNote: cause.Error(),
	}
}

// Values returns the argument values in order.
func (p ParsedInput) Values() []interface{} {
	values := make([]interface{}, len(p.Args))
	for i, a := range p.Args {
		values[i] = a.Value
	}
	return values
}

// Params renders the arguments as a call parameter list for style.
func (p ParsedInput) Params(style Style) string {
	rendered := make([]string, 0, len(p.Args))
	for _, a := range p.Args {
		lit := RenderLiteral(a.Value, style)
		if style == StyleSwift && a.Name != "" {
			lit = a.Name + ": " + lit
		}
		rendered = append(rendered, lit)
	}
	return strings.Join(rendered, ", ")
}

func decodeValue(text string) interface{} {
	if v, err := decodeJSON(text); err == nil {
		return v
	}
	if len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'' {
		return text[1 : len(text)-1]
	}
	return text
}

func decodeJSON(text string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after value")
	}
	return v, nil
}

// splitAssignment splits `name = value` on the first top-level '='. Text
// without an assignment is a positional value. An assignment whose left side
// is missing or is not an identifier is an error.
func splitAssignment(part string) (string, string, error) {
	idx := topLevelIndex(part, '=')
	if idx < 0 {
		return "", part, nil
	}
	if idx+1 < len(part) && part[idx+1] == '=' {
		return "", part, nil
	}
	if idx > 0 && strings.IndexByte("!<>=", part[idx-1]) >= 0 {
		return "", part, nil
	}
	name := strings.TrimSpace(part[:idx])
	switch {
	case name == "":
		return "", "", fmt.Errorf("argument %q has no name", part)
	case !identifierPattern.MatchString(name):
		return "", "", fmt.Errorf("argument name %q is not an identifier", name)
	}
	return name, strings.TrimSpace(part[idx+1:]), nil
}

func topLevelIndex(s string, target byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '[', '{', '(':
			depth++
		case ']', '}', ')':
			depth--
		default:
			if ch == target && depth == 0 {
				return i
			}
		}
	}
	return -1
}

var closers = map[byte]byte{']': '[', '}': '{', ')': '('}

// splitTopLevel splits s on any byte of seps outside brackets, braces,
// parentheses and quotes.
func splitTopLevel(s string, seps string) ([]string, error) {
	var (
		parts []string
		stack []byte
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '[', '{', '(':
			stack = append(stack, ch)
		case ']', '}', ')':
			if len(stack) == 0 || stack[len(stack)-1] != closers[ch] {
				return nil, fmt.Errorf("unbalanced %q at offset %d", ch, i)
			}
			stack = stack[:len(stack)-1]
		default:
			if len(stack) == 0 && strings.IndexByte(seps, ch) >= 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated string literal")
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}
	return append(parts, s[start:]), nil
}
