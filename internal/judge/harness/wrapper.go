package harness

import (
	"context"
	"strings"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// CallStyle is how the generated call expression reaches the user's function.
type CallStyle int

const (
	// CallBare calls a free function: twoSum(...)
	CallBare CallStyle = iota
	// CallMethod calls through a Solution instance: solution.twoSum(...)
	CallMethod
	// CallArrowMethod is the PHP form: $solution->twoSum(...)
	CallArrowMethod
	// CallAssociated is the Rust form: Solution::two_sum(...)
	CallAssociated
)

var callStyles = map[string]CallStyle{
	"python":     CallBare,
	"javascript": CallBare,
	"typescript": CallBare,
	"ruby":       CallBare,
	"go":         CallBare,
	"c":          CallBare,
	"php":        CallArrowMethod,
	"java":       CallMethod,
	"csharp":     CallMethod,
	"cpp":        CallMethod,
	"kotlin":     CallMethod,
	"swift":      CallMethod,
	"rust":       CallAssociated,
}

// WrapRequest describes one program to build.
type WrapRequest struct {
	// Language is a normalized registry name.
	Language     string
	Source       string
	FunctionName string
	TestInput    string
	// Template overrides the built-in harness when non-empty.
	Template string
}

// Wrapped is the program text handed to the executor.
type Wrapped struct {
	Source   string
	Call     string
	Applied  bool
	Degraded bool
	Warnings []string
}

// Wrapper fills harness templates with user code and a generated call.
type Wrapper struct {
	templates map[string]string
}

// NewWrapper returns a Wrapper using the built-in templates, with overrides
// taking precedence per language.
func NewWrapper(overrides map[string]string) *Wrapper {
	templates := make(map[string]string, len(defaultTemplates)+len(overrides))
	for lang, t := range defaultTemplates {
		templates[lang] = t
	}
	for lang, t := range overrides {
		if strings.TrimSpace(t) != "" {
			templates[lang] = t
		}
	}
	return &Wrapper{templates: templates}
}

// BuildCall renders the call expression for functionName with parsed arguments.
func BuildCall(language, functionName string, parsed ParsedInput) string {
	params := parsed.Params(StyleFor(language))
	switch callStyles[language] {
	case CallMethod:
		return "solution." + functionName + "(" + params + ")"
	case CallArrowMethod:
		return "$solution->" + functionName + "(" + params + ")"
	case CallAssociated:
		return "Solution::" + functionName + "(" + params + ")"
	default:
		return functionName + "(" + params + ")"
	}
}

// Wrap produces the complete program. Without a function name and test input
// the source is returned untouched, as it is when no template applies.
// A custom template missing placeholders still gets what can be substituted;
// the omission is reported in Warnings.
func (w *Wrapper) Wrap(ctx context.Context, req WrapRequest) Wrapped {
	out := Wrapped{Source: req.Source}
	if req.FunctionName == "" && req.TestInput == "" {
		return out
	}

	template := req.Template
	custom := strings.TrimSpace(template) != ""
	if !custom {
		if req.FunctionName == "" {
			return out
		}
		template = w.templates[req.Language]
		if template == "" {
			return out
		}
	}

	parsed := ParseInput(req.TestInput)
	if parsed.Degraded {
		out.Degraded = true
		logger.Warn(ctx, "test input degraded to a single string argument",
			zap.Int("code", int(pkgerrors.ParseDegraded)),
			zap.String("language", req.Language),
			zap.String("function", req.FunctionName),
			zap.String("reason", parsed.DegradeNote),
		)
	}
	if req.FunctionName != "" {
		out.Call = BuildCall(req.Language, req.FunctionName, parsed)
	}

	if custom {
		for _, p := range []string{PlaceholderUserCode, PlaceholderFunctionCall} {
			if !strings.Contains(template, p) {
				out.Warnings = append(out.Warnings, "harness template is missing "+p)
			}
		}
		if len(out.Warnings) > 0 {
			logger.Warn(ctx, "custom harness template is incomplete",
				zap.String("language", req.Language),
				zap.Strings("warnings", out.Warnings),
			)
		}
	}

	source := strings.ReplaceAll(template, PlaceholderUserCode, req.Source)
	source = strings.ReplaceAll(source, PlaceholderFunctionName, req.FunctionName)
	source = strings.ReplaceAll(source, PlaceholderFunctionCall, out.Call)
	source = strings.ReplaceAll(source, PlaceholderTestInput, req.TestInput)

	out.Source = source
	out.Applied = true
	return out
}
