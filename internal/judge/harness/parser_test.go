package harness

import (
	"encoding/json"
	"testing"
)

func TestParseInputNamedArguments(t *testing.T) {
	parsed := ParseInput("nums = [2,7,11,15], target = 9")
	if parsed.Degraded {
		t.Fatalf("unexpected degrade: %s", parsed.DegradeNote)
	}
	if len(parsed.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(parsed.Args))
	}
	if parsed.Args[0].Name != "nums" || parsed.Args[1].Name != "target" {
		t.Fatalf("unexpected names: %+v", parsed.Args)
	}
	list, ok := parsed.Args[0].Value.([]interface{})
	if !ok || len(list) != 4 {
		t.Fatalf("expected 4 element list, got %#v", parsed.Args[0].Value)
	}
	if n, ok := parsed.Args[1].Value.(json.Number); !ok || n.String() != "9" {
		t.Fatalf("expected number 9, got %#v", parsed.Args[1].Value)
	}
	if got := parsed.Params(StylePython); got != "[2,7,11,15], 9" {
		t.Fatalf("unexpected params: %q", got)
	}
}

func TestParseInputShapes(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		params string
		count  int
	}{
		{name: "json array spreads", input: "[1, 2, 3]", params: "1, 2, 3", count: 3},
		{name: "string with comma", input: `s = "hello, world", k = 2`, params: `"hello, world", 2`, count: 2},
		{name: "nested arrays", input: "grid = [[1,2],[3,4]], flag = true", params: "[[1,2],[3,4]], True", count: 2},
		{name: "object value", input: `m = {"a": 1, "b": [1,2]}`, params: `{"a": 1,"b": [1,2]}`, count: 1},
		{name: "bare string fallback", input: "word = abc", params: `"abc"`, count: 1},
		{name: "single quoted", input: "c = 'x'", params: `"x"`, count: 1},
		{name: "positional scalar", input: "5", params: "5", count: 1},
		{name: "null value", input: "root = null", params: "None", count: 1},
		{name: "comparison is not assignment", input: "a == b", params: `"a == b"`, count: 1},
		{name: "newline separated", input: "x = 1\ny = [1,\n2]\n", params: "1, [1,2]", count: 2},
		{name: "mixed separators", input: "x = 1,\r\ny = 2", params: "1, 2", count: 2},
		{name: "empty", input: "   ", params: "", count: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseInput(tc.input)
			if parsed.Degraded {
				t.Fatalf("unexpected degrade: %s", parsed.DegradeNote)
			}
			if len(parsed.Args) != tc.count {
				t.Fatalf("expected %d args, got %d", tc.count, len(parsed.Args))
			}
			if got := parsed.Params(StylePython); got != tc.params {
				t.Fatalf("expected %q, got %q", tc.params, got)
			}
		})
	}
}

func TestParseInputDegradesOnMalformed(t *testing.T) {
	inputs := []string{
		"nums = [1,2, target = 3",
		"a = 1]",
		`s = "unterminated`,
		"a = ",
		"a = 1, = 2",
		"x = 1\n2x = 3",
	}
	for _, in := range inputs {
		parsed := ParseInput(in)
		if !parsed.Degraded {
			t.Fatalf("%q: expected degrade", in)
		}
		if len(parsed.Args) != 1 {
			t.Fatalf("%q: expected single argument, got %d", in, len(parsed.Args))
		}
		if s, ok := parsed.Args[0].Value.(string); !ok || s != in {
			t.Fatalf("%q: expected raw string argument, got %#v", in, parsed.Args[0].Value)
		}
		if parsed.DegradeNote == "" {
			t.Fatalf("%q: expected a degrade note", in)
		}
	}
}

func TestParseInputSwiftLabels(t *testing.T) {
	parsed := ParseInput("nums = [1,2], target = 3")
	if got := parsed.Params(StyleSwift); got != "nums: [1,2], target: 3" {
		t.Fatalf("unexpected swift params: %q", got)
	}
}
