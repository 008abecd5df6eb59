// Package extract finds bare image-host links in comment text.
package extract

import "regexp"

// linkPattern matches bare gyazo links. A match only counts when the id is
// not immediately followed by another word character or a file extension,
// which RE2 cannot express, so Links checks the following byte itself.
var linkPattern = regexp.MustCompile(`https?://gyazo\.com/[a-z0-9]+`)

// Links returns every bare image-host link in text, left to right.
// It returns nil when text contains none.
func Links(text string) []string {
	var links []string
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		end := loc[1]
		if end < len(text) && blocksMatch(text[end]) {
			continue
		}
		links = append(links, text[loc[0]:end])
	}
	return links
}

func blocksMatch(b byte) bool {
	switch {
	case b == '.', b == '_':
		return true
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return false
}
