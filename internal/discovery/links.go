// Package discovery watches source channels for shared invite links and
// auto-joins them, registering the resulting chats as broadcast targets.
package discovery

import (
	"regexp"
	"strings"
)

// linkPattern matches t.me links with no embedded whitespace.
var linkPattern = regexp.MustCompile(`https?://t\.me/\S+`)

// ExtractLinks returns every invite-link substring in text, in message order
// left to right. Empty input yields nil.
func ExtractLinks(text string) []string {
	return linkPattern.FindAllString(text, -1)
}

// ParseInviteCode extracts the private invite code from a reference in
// .../joinchat/<code> or .../+<code> form. Trailing query parameters are
// stripped. Returns false when the reference is not a private invite link.
func ParseInviteCode(ref string) (string, bool) {
	var code string
	switch {
	case strings.Contains(ref, "joinchat/"):
		code = ref[strings.Index(ref, "joinchat/")+len("joinchat/"):]
	case strings.Contains(ref, "t.me/+"):
		code = ref[strings.Index(ref, "t.me/+")+len("t.me/+"):]
	case strings.HasPrefix(ref, "+"):
		code = ref[1:]
	default:
		return "", false
	}
	if i := strings.IndexByte(code, '?'); i >= 0 {
		code = code[:i]
	}
	if code == "" {
		return "", false
	}
	return code, true
}

// ParseUsername normalizes a public reference (bare username, @username or a
// full t.me URL) to a plain username. Path and query suffixes are dropped.
func ParseUsername(ref string) string {
	ref = strings.TrimSpace(ref)
	for _, prefix := range []string{"https://t.me/", "http://t.me/"} {
		if strings.HasPrefix(ref, prefix) {
			ref = ref[len(prefix):]
			break
		}
	}
	ref = strings.TrimPrefix(ref, "@")
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		ref = ref[:i]
	}
	return ref
}
