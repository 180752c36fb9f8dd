package provider

import (
	"testing"

	"github.com/SamTV12345/stackedit/internal/item"
)

func TestContentRoundTrip(t *testing.T) {
	original := &item.Content{Text: "# Title\n\nbody", Properties: "title: Hello\ntags: [go]\n"}
	parsed := ParseContent(SerializeContent(original))

	if parsed.Text != original.Text {
		t.Errorf("Text = %q, want %q", parsed.Text, original.Text)
	}
	if parsed.Properties != original.Properties {
		t.Errorf("Properties = %q, want %q", parsed.Properties, original.Properties)
	}
	if parsed.Hash != item.HashContent(parsed) {
		t.Error("expected hash computed over parsed content")
	}
}

func TestParseContentWithoutFrontMatter(t *testing.T) {
	parsed := ParseContent("plain body")
	if parsed.Text != "plain body" || parsed.Properties != "" {
		t.Errorf("unexpected parse %+v", parsed)
	}
}

func TestParseContentUnterminatedFrontMatter(t *testing.T) {
	data := "---\ntitle: Hello\nno terminator"
	parsed := ParseContent(data)
	if parsed.Text != data || parsed.Properties != "" {
		t.Errorf("expected the block treated as plain text, got %+v", parsed)
	}
}

func TestSerializeContentWithoutProperties(t *testing.T) {
	if got := SerializeContent(&item.Content{Text: "body"}); got != "body" {
		t.Errorf("SerializeContent = %q", got)
	}
}
