package judge

import (
	"sort"
	"testing"

	apperrors "codearena/pkg/errors"
)

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		name     string
		language string
		wantID   int
		wantErr  bool
	}{
		{name: "canonical cpp", language: "c++", wantID: 54},
		{name: "cpp alias", language: "cpp", wantID: 54},
		{name: "java", language: "java", wantID: 62},
		{name: "javascript", language: "javascript", wantID: 63},
		{name: "js alias", language: "js", wantID: 63},
		{name: "python", language: "python", wantID: 71},
		{name: "python3 alias", language: "python3", wantID: 71},
		{name: "go", language: "go", wantID: 60},
		{name: "golang alias", language: "golang", wantID: 60},
		{name: "uppercase", language: "Java", wantID: 62},
		{name: "surrounding whitespace", language: "  rust  ", wantID: 73},
		{name: "unknown", language: "cobol", wantErr: true},
		{name: "empty", language: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ResolveLanguage(tt.language)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveLanguage(%q) expected error, got id %d", tt.language, id)
				}
				if !apperrors.Is(err, apperrors.LanguageNotSupported) {
					t.Errorf("expected LanguageNotSupported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveLanguage(%q) unexpected error: %v", tt.language, err)
			}
			if id != tt.wantID {
				t.Errorf("ResolveLanguage(%q) = %d, want %d", tt.language, id, tt.wantID)
			}
		})
	}
}

func TestLanguagesSortedAndResolvable(t *testing.T) {
	langs := Languages()
	if len(langs) == 0 {
		t.Fatal("Languages() returned nothing")
	}
	if !sort.SliceIsSorted(langs, func(i, j int) bool { return langs[i].Name < langs[j].Name }) {
		t.Error("Languages() not sorted by name")
	}
	for _, lang := range langs {
		id, err := ResolveLanguage(lang.Name)
		if err != nil {
			t.Errorf("listed language %q does not resolve: %v", lang.Name, err)
			continue
		}
		if id != lang.ID {
			t.Errorf("language %q resolves to %d, listed as %d", lang.Name, id, lang.ID)
		}
	}
}
