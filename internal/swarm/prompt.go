package swarm

import "strings"

// RenderPrompt substitutes {{item}} in a swarm's prompt_template with item's
// text. If the template has no placeholder, item is appended on its own
// line so every template still receives the data it's mapping over.
func RenderPrompt(template, item string) string {
	if strings.Contains(template, "{{item}}") {
		return strings.ReplaceAll(template, "{{item}}", item)
	}
	if template == "" {
		return item
	}
	return template + "\n\n" + item
}
