package judge

import (
	"sort"
	"strings"

	apperrors "codearena/pkg/errors"
)

// Language describes a programming language accepted for submissions,
// mapped to the external judge's language id.
type Language struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// languageIDs maps canonical language names to judge language ids.
var languageIDs = map[string]int{
	"c":          50,
	"c++":        54,
	"go":         60,
	"java":       62,
	"javascript": 63,
	"python":     71,
	"rust":       73,
	"typescript": 74,
}

// languageAliases maps accepted spellings to canonical names.
var languageAliases = map[string]string{
	"cpp":     "c++",
	"golang":  "go",
	"js":      "javascript",
	"node":    "javascript",
	"nodejs":  "javascript",
	"py":      "python",
	"python3": "python",
	"ts":      "typescript",
}

// ResolveLanguage maps a user-facing language name to the judge language id.
// Matching is case-insensitive and tolerates surrounding whitespace.
func ResolveLanguage(name string) (int, error) {
	canonical := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[canonical]; ok {
		canonical = alias
	}
	id, ok := languageIDs[canonical]
	if !ok {
		return 0, apperrors.Newf(apperrors.LanguageNotSupported, "language %q is not supported", name)
	}
	return id, nil
}

// Languages returns the supported languages sorted by name.
func Languages() []Language {
	langs := make([]Language, 0, len(languageIDs))
	for name, id := range languageIDs {
		langs = append(langs, Language{Name: name, ID: id})
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].Name < langs[j].Name })
	return langs
}
