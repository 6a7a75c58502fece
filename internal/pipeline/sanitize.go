package pipeline

import (
	"regexp"
	"strings"

	"github.com/armtc/transcoder/internal/catalog"
)

// forbiddenFilenameChars are characters forbidden on common filesystems
// (spec §4.8 step 8), stripped from a title before it is used as a
// directory name.
const forbiddenFilenameChars = `<>:"/\|?*`

var whitespaceRun = regexp.MustCompile(`\s+`)

// sanitizeTitle implements the output-path sanitization rule of spec
// §4.8 step 8: strip forbidden filesystem characters and control bytes,
// collapse whitespace runs, trim to 200 characters, and substitute
// "untitled" when the result is empty.
func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if r < 0x20 || r == 0x7f {
			continue
		}
		if strings.ContainsRune(forbiddenFilenameChars, r) {
			continue
		}
		b.WriteRune(r)
	}

	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
	if runes := []rune(collapsed); len(runes) > 200 {
		collapsed = strings.TrimSpace(string(runes[:200]))
	}
	if collapsed == "" {
		return "untitled"
	}
	return collapsed
}

// tvPattern matches a TV-episode designation: S<digits>E<digits> (e.g.
// "S02E14") or a trailing "_S<digits>" season marker, case-insensitive,
// with a word boundary (spec §4.8 step 6).
var tvPattern = regexp.MustCompile(`(?i)s\d{1,2}e\d{1,3}|_s\d+\b`)

// classifyVideoType inspects title and resolvedPath for the TV-episode
// pattern; a match anywhere in either string selects "tv", otherwise
// "movie" (spec §4.8 step 6).
func classifyVideoType(title, resolvedPath string) catalog.VideoType {
	if tvPattern.MatchString(title) || tvPattern.MatchString(resolvedPath) {
		return catalog.VideoTypeTV
	}
	return catalog.VideoTypeMovie
}
