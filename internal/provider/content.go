package provider

import (
	"strings"

	"github.com/SamTV12345/stackedit/internal/item"
)

// frontMatterDelimiter separates YAML properties from the markdown body
// in the serialized form stored at remote backends.
const frontMatterDelimiter = "---"

// SerializeContent renders a content record into the text form stored
// remotely: an optional YAML front-matter block followed by the body.
func SerializeContent(c *item.Content) string {
	if c.Properties == "" {
		return c.Text
	}
	var b strings.Builder
	b.WriteString(frontMatterDelimiter)
	b.WriteString("\n")
	b.WriteString(strings.TrimSuffix(c.Properties, "\n"))
	b.WriteString("\n")
	b.WriteString(frontMatterDelimiter)
	b.WriteString("\n")
	b.WriteString(c.Text)
	return b.String()
}

// ParseContent splits serialized remote text back into a content record
// and computes its hash. Text without a leading front-matter block is
// taken verbatim.
func ParseContent(data string) *item.Content {
	c := &item.Content{Text: data}

	if strings.HasPrefix(data, frontMatterDelimiter+"\n") {
		rest := data[len(frontMatterDelimiter)+1:]
		if idx := strings.Index(rest, "\n"+frontMatterDelimiter+"\n"); idx >= 0 {
			c.Properties = rest[:idx] + "\n"
			c.Text = rest[idx+len(frontMatterDelimiter)+2:]
		}
	}

	c.Hash = item.HashContent(c)
	return c
}
