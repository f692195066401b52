package storage

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizeFilename reduces a client-supplied name to a safe ASCII basename.
// Accents are folded, path components and other punctuation are dropped, and
// whitespace becomes underscores. A stem with nothing left becomes "image"
// so the extension survives.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, name); err == nil {
		name = folded
	}

	ext := filepath.Ext(name)
	stem := strings.Trim(keepSafe(strings.TrimSuffix(name, ext), true), "._-")
	ext = strings.ToLower(keepSafe(strings.TrimPrefix(ext, "."), false))
	if stem == "" {
		stem = "image"
	}
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

func keepSafe(s string, allowPunct bool) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
		case allowPunct && (r == '-' || r == '_' || r == '.'):
			sb.WriteRune(r)
		case allowPunct && unicode.IsSpace(r):
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
