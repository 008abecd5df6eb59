package processor

import (
	"fmt"
	"strings"
)

// FormatReply builds the reply body from rehost results in match order. An
// empty entry is a failed rehost: it gets no line but still uses up its
// number, so "Image 2:" can be the only line. A comment with a single match
// gets an unnumbered "Image:" label.
func FormatReply(links []string) string {
	var b strings.Builder
	for i, link := range links {
		if link == "" {
			continue
		}
		if len(links) == 1 {
			fmt.Fprintf(&b, "Image: %s \n\n", link)
			continue
		}
		fmt.Fprintf(&b, "Image %d: %s \n\n", i+1, link)
	}
	return b.String()
}
