package reader

import (
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	lineBreakTag = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphEnd = regexp.MustCompile(`(?i)</p\s*>`)
	blockEnd     = regexp.MustCompile(`(?i)</(?:div|tr|li)\s*>`)
	listItemTag  = regexp.MustCompile(`(?i)<li(?:\s[^>]*)?>`)
	anyTag       = regexp.MustCompile(`<[^<]+?>`)

	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
	)
)

// Bullet prefixes list items in converted HTML.
const Bullet = "• "

// HTMLToText converts an HTML body into plain text while keeping its line
// structure: line breaks and block ends become newlines, list items become
// bullets, tags are removed and the common entities decoded. Blank lines are
// dropped and every remaining line is trimmed.
func HTMLToText(payload []byte) string {
	text := decodeUTF8(payload)

	text = lineBreakTag.ReplaceAllString(text, "\n")
	text = paragraphEnd.ReplaceAllString(text, "\n\n")
	text = blockEnd.ReplaceAllString(text, "\n")
	text = listItemTag.ReplaceAllString(text, "\n"+Bullet)

	text = anyTag.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)

	return collapseLines(text)
}

func collapseLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// decodeUTF8 decodes payload as UTF-8, replacing invalid sequences with U+FFFD.
func decodeUTF8(payload []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(payload)
	if err != nil {
		return strings.ToValidUTF8(string(payload), "\uFFFD")
	}
	return string(decoded)
}
