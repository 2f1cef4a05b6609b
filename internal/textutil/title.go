package textutil

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TitleFromFileName derives a display title from a file or directory path.
// Separators become single spaces, leading track numbers are dropped and the
// result is title-cased. Returns fallback when nothing usable remains.
func TitleFromFileName(path, fallback string) string {
	if strings.TrimSpace(path) == "" {
		return fallback
	}
	base := filepath.Base(filepath.Clean(path))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = stripTrackNumber(base)

	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' || r == '&':
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return fallback
	}
	return cases.Title(language.Und).String(title)
}

// stripTrackNumber removes a "01 - " or "01." style prefix.
func stripTrackNumber(name string) string {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 || i > 3 || i == len(name) {
		return name
	}
	rest := strings.TrimLeft(name[i:], " ")
	if rest == "" {
		return name
	}
	switch rest[0] {
	case '-', '.', '_':
		return strings.TrimLeft(rest[1:], " ")
	}
	if rest != name[i:] {
		return rest
	}
	return name
}
