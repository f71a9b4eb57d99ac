// Package htmlview prepares message bodies for display: HTML sanitization,
// inline-image rewriting and plain-text snippets.
package htmlview

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SnippetLength is the maximum snippet size in characters before the
// truncation marker.
const SnippetLength = 200

var (
	policy = buildPolicy()

	remoteImgPattern = regexp.MustCompile(`(?i)<img[^>]*\bsrc\s*=\s*["']?https?:[^>]*>`)
	tagPattern       = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptPattern    = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
	cidPattern       = regexp.MustCompile(`(?i)(src\s*=\s*["'])cid:([^"']+)(["'])`)
)

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"a", "b", "i", "u", "em", "strong", "p", "br", "hr",
		"div", "span", "blockquote", "pre", "code",
		"ul", "ol", "li", "dl", "dt", "dd",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"table", "thead", "tbody", "tfoot", "tr", "td", "th",
		"img", "font", "center", "small", "big", "sub", "sup",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	p.AllowAttrs("style").Globally()
	p.AllowAttrs("align", "valign", "colspan", "rowspan", "cellpadding", "cellspacing", "border", "width", "height").OnElements("table", "tr", "td", "th")
	p.AllowAttrs("color", "face", "size").OnElements("font")

	p.AllowStandardURLs()
	p.AllowURLSchemes("http", "https", "mailto", "cid")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return p
}

// Sanitize strips active content from an HTML body. When allowRemote is
// false, images with remote http(s) sources are replaced with a placeholder;
// blocked reports whether any were. Inline cid: images always pass through.
func Sanitize(html string, allowRemote bool) (string, bool) {
	clean := policy.Sanitize(html)
	if allowRemote {
		return clean, false
	}

	blocked := false
	clean = remoteImgPattern.ReplaceAllStringFunc(clean, func(string) string {
		blocked = true
		return `<span class="blocked-image">[Image blocked]</span>`
	})
	return clean, blocked
}

// RewriteCIDImages replaces cid: image references with the URL of the stored
// inline attachment. Content IDs with no matching attachment are left alone.
func RewriteCIDImages(html string, urlsByCID map[string]string) string {
	if len(urlsByCID) == 0 {
		return html
	}
	return cidPattern.ReplaceAllStringFunc(html, func(match string) string {
		parts := cidPattern.FindStringSubmatch(match)
		url, ok := urlsByCID[parts[2]]
		if !ok {
			return match
		}
		return parts[1] + url + parts[3]
	})
}

// ExtractPlainText reduces an HTML body to its text content with whitespace
// collapsed.
func ExtractPlainText(html string) string {
	text := scriptPattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(text)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// Snippet collapses whitespace and truncates the text to SnippetLength
// characters, appending an ellipsis marker when anything was cut.
func Snippet(text string) string {
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) <= SnippetLength {
		return text
	}
	return string(runes[:SnippetLength]) + "..."
}
