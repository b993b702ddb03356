package render

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mapset-verifier/server/pkg/checks"
)

type iconDoc struct {
	icon, title, desc, category string
}

var iconDocs = []iconDoc{
	{"check", "Check", "No issues were found.", "Checks"},
	{"error", "Error", "An error occurred preventing a complete check.", "Checks"},
	{"minor", "Minor", "One or more negligible issues may have been found.", "Checks"},
	{"exclamation", "Warning", "One or more issues may have been found.", "Checks"},
	{"cross", "Problem", "One or more issues were found.", "Checks"},
	{iconUnchanged, "None", "No changes were made.", "Snapshots"},
	{iconRemoved, "Removal", "One or more lines were removed.", "Snapshots"},
	{iconAdded, "Addition", "One or more lines were added.", "Snapshots"},
	{iconChanged, "Change", "One or more lines were changed.", "Snapshots"},
}

// Documentation renders the icon legend followed by a box per check,
// general checks first.
func Documentation(registry *checks.Registry) (string, error) {
	var icons strings.Builder

	for _, d := range iconDocs {
		icons.WriteString(docBox(d.icon, d.title, d.desc, d.category, true))
	}

	var general, difficulty []checks.Meta

	for _, c := range registry.Checks() {
		meta := c.Meta()
		if meta.General {
			general = append(general, meta)
		} else {
			difficulty = append(difficulty, meta)
		}
	}

	return Div("doc-mode-title", "Icons") +
		Div("doc-box-container", icons.String()) +
		docSection("General", general) +
		docSection("Difficulties", difficulty), nil
}

func docSection(title string, metas []checks.Meta) string {
	if len(metas) == 0 {
		return ""
	}

	slices.SortStableFunc(metas, func(a, b checks.Meta) int { return strings.Compare(a.Category, b.Category) })

	var boxes strings.Builder

	for _, meta := range metas {
		var templates strings.Builder

		for _, key := range templateKeys(meta) {
			tmpl := meta.Templates[key]
			templates.WriteString(Div("card-detail-icon " + tmpl.Level.Icon() + "-icon"))
			templates.WriteString(Div("doc-box-issue", Encode(tmpl.Format)))
		}

		boxes.WriteString(docBox("check", Encode(meta.Message), templates.String(),
			Div("doc-box-category", Encode(meta.Category))+Div("doc-box-author", Encode(meta.Author)), false))
	}

	return Div("doc-mode-title", Encode(title)) +
		Div("doc-mode-content", Div("doc-box-container", boxes.String()))
}

func docBox(icon, title, desc, category string, iconDoc bool) string {
	class := "doc-box"
	if iconDoc {
		class = "doc-icon-box"
	}

	return Div(class,
		Div("doc-box-inner",
			Div("doc-box-content",
				Div("doc-box-title", Div("doc-box-icon "+icon+"-icon"), title),
				Div("doc-box-desc", desc),
			),
			Div("doc-box-footer", category),
		),
	)
}

// Overlay renders the documentation overlay of the check with the given
// message. An unknown message yields a short notice, not an error.
func Overlay(registry *checks.Registry, message string) (string, error) {
	check, err := registry.ByMessage(message)
	if errors.Is(err, checks.ErrUnknownCheck) {
		notice := fmt.Sprintf("No documentation found for check with message %q.", Encode(message))
		if suggestion, ok := registry.Suggest(message); ok {
			notice += fmt.Sprintf(" Did you mean %q?", Encode(suggestion))
		}

		return notice, nil
	}

	if err != nil {
		return "", err
	}

	meta := check.Meta()

	top := DivAttr("", ` id="overlay-top"`,
		DivAttr("check-icon", ` id="overlay-top-icon"`),
		DivAttr("", ` id="overlay-top-title"`, Encode(meta.Message)),
	) + DivAttr("", ` id="overlay-top-subfields"`,
		DivAttr("", ` id="overlay-top-category"`, Encode(overlayScope(meta)+" > "+meta.Category)),
		DivAttr("", ` id="overlay-top-author"`, "Created by "+Encode(meta.Author)),
	)

	var templates strings.Builder

	for _, key := range templateKeys(meta) {
		tmpl := meta.Templates[key]
		templates.WriteString(Div("check",
			Div("card-detail-icon "+tmpl.Level.Icon()+"-icon"),
			Div("message", Encode(tmpl.Format)),
		))
	}

	if len(meta.Templates) == 0 {
		templates.WriteString("No issue templates available.")
	}

	var docs strings.Builder

	for _, section := range meta.Docs {
		docs.WriteString(Div("title", Encode(section.Title)))
		docs.WriteString(Div("", Timestamps(Encode(section.Body))))
	}

	return top +
		Div("paste-separator") +
		DivAttr("", ` style="clear:both;"`) +
		DivAttr("", ` id="overlay-content"`, templates.String(), docs.String()), nil
}

func overlayScope(meta checks.Meta) string {
	if meta.General {
		return "General"
	}

	return "Difficulties"
}

func templateKeys(meta checks.Meta) []string {
	keys := make([]string, 0, len(meta.Templates))
	for k := range meta.Templates {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
