package discovery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// issuePathPattern matches .../lccn/<lccn>/<date>/ed-<edition>[.json] with
// an optional host/scheme prefix and optional trailing path segments
// (e.g. a page's seq-N suffix), per spec.md's item_id/URL shape:
// /lccn/<lccn>/<date>/ed-<edition>/seq-<sequence>.
var issuePathPattern = regexp.MustCompile(`/lccn/([a-zA-Z0-9]+)/(\d{4}-\d{2}-\d{2})/ed-(\d+)`)

// ParseIssueURL extracts (lccn, date, edition) from an issue or page URL,
// the batch-mode fast-path parse of spec.md §4.4.1. It never issues a
// network call.
func ParseIssueURL(rawURL string) (ParsedIssueURL, error) {
	m := issuePathPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ParsedIssueURL{}, fmt.Errorf("discovery: could not parse issue url %q", rawURL)
	}
	edition, err := strconv.Atoi(m[3])
	if err != nil {
		return ParsedIssueURL{}, fmt.Errorf("discovery: bad edition in %q: %w", rawURL, err)
	}
	return ParsedIssueURL{LCCN: m[1], Date: m[2], Edition: edition}, nil
}

// ItemID builds the canonical Page.ItemID for (lccn, date, edition,
// sequence), matching the upstream URL path shape named in spec.md's
// GLOSSARY.
func ItemID(lccn, date string, edition, sequence int) string {
	return fmt.Sprintf("/lccn/%s/%s/ed-%d/seq-%d/", lccn, date, edition, sequence)
}

// SanitizeForFilesystem replaces path-hostile characters, per spec.md §5:
// "/", "\", ":" → "_".
func SanitizeForFilesystem(s string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return r.Replace(s)
}
