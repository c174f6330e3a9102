// Package sanitize cleans user-supplied text before it is placed in outbound
// HTML email. Uses bluemonday to strip dangerous HTML (script tags, event
// handlers, javascript: URLs) while preserving safe formatting.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Policies are built once; bluemonday policies are safe for concurrent use
// after construction.
var (
	ugcPolicy    *bluemonday.Policy
	strictPolicy *bluemonday.Policy
	policyOnce   sync.Once
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	policyOnce.Do(func() {
		ugcPolicy = bluemonday.UGCPolicy()
		// Links in relayed mail open in a new context and never pass referrers.
		ugcPolicy.RequireNoReferrerOnLinks(true)
		ugcPolicy.AddTargetBlankToFullyQualifiedLinks(true)

		strictPolicy = bluemonday.StrictPolicy()
	})
	return ugcPolicy, strictPolicy
}

// HTML sanitizes user-generated HTML, keeping basic formatting (paragraphs,
// emphasis, lists, links) and dropping everything executable.
//
// This MUST be called on all user-provided HTML before it is embedded in a
// message body.
func HTML(input string) string {
	if input == "" {
		return ""
	}
	ugc, _ := policies()
	return ugc.Sanitize(input)
}

// Text strips all markup and collapses the result to a single line of plain
// text. Used for header-bound values such as subjects.
func Text(input string) string {
	if input == "" {
		return ""
	}
	_, strict := policies()
	return strings.Join(strings.Fields(html.UnescapeString(strict.Sanitize(input))), " ")
}
