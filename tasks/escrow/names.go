package escrow

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var isNUL = runes.Predicate(func(r rune) bool { return r == 0 })

// sanitizeName returns name as valid UTF-8 without NUL bytes, which postgres text columns reject.
func sanitizeName(name string) string {
	t := transform.Chain(runes.ReplaceIllFormed(), runes.Remove(isNUL))
	out, _, err := transform.String(t, name)
	if err != nil {
		return strings.ToValidUTF8(strings.ReplaceAll(name, "\x00", ""), "�")
	}
	return strings.TrimSpace(out)
}
