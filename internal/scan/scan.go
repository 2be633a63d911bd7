// Package scan extracts email address tokens from raw document text.
package scan

import "regexp"

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// Emails returns every address-like token in text, in order of
// appearance. Matches are not deduplicated or normalized; consumers
// that need either must post-process. Safe for concurrent use.
func Emails(text string) []string {
	return emailPattern.FindAllString(text, -1)
}
