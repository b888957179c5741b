package report

import "regexp"

var wcagTag = regexp.MustCompile(`^wcag(\d)(\d)(\d+)$`)

// FormatWCAG rewrites "wcag143" to "1.4.3" and "wcag1410" to "1.4.10".
// Any other value is returned unchanged.
func FormatWCAG(tag string) string {
	m := wcagTag.FindStringSubmatch(tag)
	if m == nil {
		return tag
	}
	return m[1] + "." + m[2] + "." + m[3]
}
