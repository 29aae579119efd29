package extractor

import (
	"regexp"
	"strings"
)

var (
	lineEndings   = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	horizontalWS  = regexp.MustCompile(`[\t\f\v\p{Zs}]+`)
	spaceAtBreak  = regexp.MustCompile(` ?\n ?`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// Normalize converts extracted text into the single plain-text form fed to
// generation: LF line endings, single spaces, at most one blank line in a
// row, no surrounding whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	s := lineEndings.Replace(raw)
	s = horizontalWS.ReplaceAllString(s, " ")
	s = spaceAtBreak.ReplaceAllString(s, "\n")
	s = blankLineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
