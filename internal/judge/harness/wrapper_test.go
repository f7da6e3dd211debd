package harness

import (
	"context"
	"strings"
	"testing"
)

const pythonTwoSum = "def twoSum(nums, target):\n    return [0, 1]\n"

func TestWrapPythonTwoSum(t *testing.T) {
	w := NewWrapper(nil)
	out := w.Wrap(context.Background(), WrapRequest{
		Language:     "python",
		Source:       pythonTwoSum,
		FunctionName: "twoSum",
		TestInput:    "nums = [2,7,11,15], target = 9",
	})
	if !out.Applied {
		t.Fatalf("expected template to apply")
	}
	if out.Call != "twoSum([2,7,11,15], 9)" {
		t.Fatalf("unexpected call: %q", out.Call)
	}
	if !strings.Contains(out.Source, pythonTwoSum) {
		t.Fatalf("user code missing from program")
	}
	if !strings.Contains(out.Source, "result = twoSum([2,7,11,15], 9)") {
		t.Fatalf("call missing from program:\n%s", out.Source)
	}
	if strings.Contains(out.Source, "{{") {
		t.Fatalf("unsubstituted placeholder left:\n%s", out.Source)
	}
	if len(out.Warnings) != 0 || out.Degraded {
		t.Fatalf("unexpected diagnostics: %+v", out)
	}
}

func TestWrapCallStyles(t *testing.T) {
	cases := []struct {
		language string
		fn       string
		want     string
	}{
		{"java", "twoSum", "solution.twoSum(new int[]{2,7,11,15}, 9)"},
		{"cpp", "twoSum", "solution.twoSum({2,7,11,15}, 9)"},
		{"javascript", "twoSum", "twoSum([2,7,11,15], 9)"},
		{"go", "twoSum", "twoSum([]int{2,7,11,15}, 9)"},
		{"php", "twoSum", "$solution->twoSum([2,7,11,15], 9)"},
		{"rust", "two_sum", "Solution::two_sum(vec![2,7,11,15], 9)"},
		{"swift", "twoSum", "solution.twoSum(nums: [2,7,11,15], target: 9)"},
	}
	w := NewWrapper(nil)
	for _, tc := range cases {
		out := w.Wrap(context.Background(), WrapRequest{
			Language:     tc.language,
			Source:       "code",
			FunctionName: tc.fn,
			TestInput:    "nums = [2,7,11,15], target = 9",
		})
		if out.Call != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.language, tc.want, out.Call)
		}
		if !strings.Contains(out.Source, tc.want) {
			t.Fatalf("%s: call not substituted into program", tc.language)
		}
	}
}

func TestWrapWithoutFunctionOrInputIsIdentity(t *testing.T) {
	w := NewWrapper(nil)
	out := w.Wrap(context.Background(), WrapRequest{Language: "python", Source: "print(1)"})
	if out.Applied || out.Source != "print(1)" {
		t.Fatalf("expected untouched source, got %+v", out)
	}
}

func TestWrapInputWithoutFunctionNeedsCustomTemplate(t *testing.T) {
	w := NewWrapper(nil)
	out := w.Wrap(context.Background(), WrapRequest{Language: "python", Source: "print(input())", TestInput: "3"})
	if out.Applied || out.Source != "print(input())" {
		t.Fatalf("expected untouched source, got %+v", out)
	}
}

func TestWrapSubstitutionOrder(t *testing.T) {
	w := NewWrapper(nil)
	out := w.Wrap(context.Background(), WrapRequest{
		Language:     "python",
		Source:       "X",
		FunctionName: "f",
		TestInput:    "1",
		Template:     "{{USER_CODE}}|{{FUNCTION_NAME}}|{{FUNCTION_CALL}}|{{TEST_INPUT}}|{{FUNCTION_NAME}}",
	})
	if out.Source != "X|f|f(1)|1|f" {
		t.Fatalf("unexpected program: %q", out.Source)
	}
}

func TestWrapCustomTemplateMissingPlaceholders(t *testing.T) {
	w := NewWrapper(nil)
	out := w.Wrap(context.Background(), WrapRequest{
		Language:     "python",
		Source:       "def f(x): return x",
		FunctionName: "f",
		TestInput:    "x = 1",
		Template:     "print({{TEST_INPUT}})",
	})
	if len(out.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", out.Warnings)
	}
	if out.Source != "print(x = 1)" {
		t.Fatalf("expected partial substitution, got %q", out.Source)
	}
}

func TestWrapDegradedInput(t *testing.T) {
	w := NewWrapper(nil)
	out := w.Wrap(context.Background(), WrapRequest{
		Language:     "python",
		Source:       "def f(x): return x",
		FunctionName: "f",
		TestInput:    "nums = [1,2",
	})
	if !out.Degraded {
		t.Fatalf("expected degraded flag")
	}
	if out.Call != `f("nums = [1,2")` {
		t.Fatalf("unexpected call: %q", out.Call)
	}
}

func TestNewWrapperOverride(t *testing.T) {
	w := NewWrapper(map[string]string{"python": "{{USER_CODE}}\nprint({{FUNCTION_CALL}})"})
	out := w.Wrap(context.Background(), WrapRequest{Language: "python", Source: "S", FunctionName: "g", TestInput: "2"})
	if out.Source != "S\nprint(g(2))" {
		t.Fatalf("override not used: %q", out.Source)
	}
}
