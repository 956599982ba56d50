package multitrack

import (
	"net/url"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NameFromURL derives a display name from the last path segment of a source
// URL: "https://cdn/Viol%C3%ADn_2.mp3" becomes "Violin 2".
func NameFromURL(sourceURL string) string {
	segment := sourceURL
	if u, err := url.Parse(sourceURL); err == nil && u.Path != "" {
		segment = u.Path
	}
	segment = path.Base(strings.ReplaceAll(segment, `\`, "/"))
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	segment = strings.TrimSuffix(segment, path.Ext(segment))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	normalized, _, err := transform.String(t, segment)
	if err != nil {
		normalized = segment
	}

	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	name := strings.Join(words, " ")
	if name == "" || name == "." || name == "/" {
		return ""
	}
	return name
}
