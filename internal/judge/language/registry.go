// Package language maps language names and execution engine status codes
// onto the grader's vocabulary.
package language

import (
	"sort"
	"strings"

	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
)

// Language is one supported submission language.
type Language struct {
	Name        string `json:"name"`
	ID          int    `json:"id"`
	DisplayName string `json:"displayName"`
}

var registry = map[string]Language{
	"python":     {Name: "python", ID: 71, DisplayName: "Python (3.8.1)"},
	"javascript": {Name: "javascript", ID: 63, DisplayName: "JavaScript (Node.js 12.14.0)"},
	"java":       {Name: "java", ID: 62, DisplayName: "Java (OpenJDK 13.0.1)"},
	"cpp":        {Name: "cpp", ID: 54, DisplayName: "C++ (GCC 9.2.0)"},
	"c":          {Name: "c", ID: 50, DisplayName: "C (GCC 9.2.0)"},
	"typescript": {Name: "typescript", ID: 74, DisplayName: "TypeScript (3.7.4)"},
	"go":         {Name: "go", ID: 60, DisplayName: "Go (1.13.5)"},
	"csharp":     {Name: "csharp", ID: 51, DisplayName: "C# (Mono 6.6.0.161)"},
	"ruby":       {Name: "ruby", ID: 72, DisplayName: "Ruby (2.7.0)"},
	"rust":       {Name: "rust", ID: 73, DisplayName: "Rust (1.40.0)"},
	"kotlin":     {Name: "kotlin", ID: 78, DisplayName: "Kotlin (1.3.70)"},
	"swift":      {Name: "swift", ID: 83, DisplayName: "Swift (5.2.3)"},
	"php":        {Name: "php", ID: 68, DisplayName: "PHP (7.4.1)"},
}

var aliases = map[string]string{
	"py":      "python",
	"python3": "python",
	"js":      "javascript",
	"node":    "javascript",
	"ts":      "typescript",
	"c++":     "cpp",
	"golang":  "go",
	"c#":      "csharp",
	"cs":      "csharp",
	"rb":      "ruby",
	"rs":      "rust",
	"kt":      "kotlin",
}

// Normalize lowercases name and resolves common aliases.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[n]; ok {
		return canonical
	}
	return n
}

// Lookup returns the registry entry for name.
func Lookup(name string) (Language, bool) {
	lang, ok := registry[Normalize(name)]
	return lang, ok
}

// LanguageID returns the engine identifier for name, case-insensitively.
func LanguageID(name string) (int, error) {
	lang, ok := Lookup(name)
	if !ok {
		return 0, pkgerrors.Newf(pkgerrors.LanguageNotSupported, "language %q is not supported", name)
	}
	return lang.ID, nil
}

// Supported lists every registered language ordered by name.
func Supported() []Language {
	out := make([]Language, 0, len(registry))
	for _, lang := range registry {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Engine status identifiers.
const (
	StatusInQueue       = 1
	StatusProcessing    = 2
	StatusAccepted      = 3
	StatusWrongAnswer   = 4
	StatusTimeLimit     = 5
	StatusCompileError  = 6
	StatusRuntimeFirst  = 7
	StatusRuntimeLast   = 12
	StatusInternalError = 13
	StatusExecFormat    = 14
)

// IsPending reports whether the engine is still working on a job.
func IsPending(statusID int) bool {
	return statusID <= StatusProcessing
}

// StatusName maps an engine status code to a submission status.
// Unknown codes map to internal_error.
func StatusName(statusID int) model.Status {
	switch {
	case statusID == StatusInQueue || statusID == StatusProcessing:
		return model.StatusPending
	case statusID == StatusAccepted:
		return model.StatusAccepted
	case statusID == StatusWrongAnswer:
		return model.StatusWrongAnswer
	case statusID == StatusTimeLimit:
		return model.StatusTimeLimitExceeded
	case statusID == StatusCompileError:
		return model.StatusCompilationError
	case statusID >= StatusRuntimeFirst && statusID <= StatusRuntimeLast, statusID == StatusExecFormat:
		return model.StatusRuntimeError
	default:
		return model.StatusInternalError
	}
}
