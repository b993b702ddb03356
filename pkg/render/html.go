// Package render turns analysis results into the HTML fragments the client
// displays. Renderers are pure functions of their inputs.
package render

import (
	"html"
	"regexp"
	"strings"

	"github.com/mapset-verifier/server/pkg/checks"
)

// Div wraps contents in a div with the given class.
func Div(class string, contents ...string) string {
	return DivAttr(class, "", contents...)
}

// DivAttr wraps contents in a div with the given class and raw attributes.
// attrs must already be escaped, e.g. built with DataAttr.
func DivAttr(class, attrs string, contents ...string) string {
	var b strings.Builder

	b.WriteString("<div")

	if class != "" {
		b.WriteString(` class="`)
		b.WriteString(class)
		b.WriteString(`"`)
	}

	b.WriteString(attrs)
	b.WriteString(">")

	for _, c := range contents {
		b.WriteString(c)
	}

	b.WriteString("</div>")

	return b.String()
}

// DataAttr returns a data-<name> attribute with an escaped value.
func DataAttr(name, value string) string {
	return " data-" + name + `="` + Encode(value) + `"`
}

// Tooltip returns a tooltip attribute.
func Tooltip(text string) string {
	return DataAttr("tooltip", text)
}

// Encode escapes text for inclusion in HTML.
func Encode(text string) string {
	return html.EscapeString(text)
}

// Link returns an anchor. content defaults to the href.
func Link(href, content string) string {
	if content == "" {
		content = href
	}

	return `<a href="` + Encode(href) + `">` + content + "</a>"
}

// Icon returns the icon of the most severe issue, or the check icon when
// there are none.
func Icon(issues []checks.Issue) string {
	if len(issues) == 0 {
		return checks.LevelCheck.Icon()
	}

	worst := issues[0].Level
	for _, issue := range issues[1:] {
		worst = max(worst, issue.Level)
	}

	return worst.Icon()
}

var timestampPattern = regexp.MustCompile(`\d\d:\d\d:\d\d\d( \([\d,|]+\))?`)

// Timestamps turns editor timestamps in already escaped text into editor
// links.
func Timestamps(text string) string {
	return timestampPattern.ReplaceAllStringFunc(text, func(ts string) string {
		return `<a href="osu://edit/` + ts + `" class="card-instance-timestamp">` + ts + "</a>"
	})
}
