package publish

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Metadata is the front-matter subset templates and backends consume.
type Metadata struct {
	Title         string
	Author        string
	Tags          []string
	Categories    []string
	Excerpt       string
	FeaturedImage string
	Status        string
	Date          time.Time
}

// ParseMetadata extracts publish metadata from the YAML properties of a
// content record. Scalar fields tolerate any YAML scalar type, list
// fields tolerate a single scalar, and the date tolerates a date-only
// string. Empty properties yield zero metadata.
func ParseMetadata(properties string) (*Metadata, error) {
	meta := &Metadata{}
	if properties == "" {
		return meta, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(properties), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse front-matter properties: %w", err)
	}

	meta.Title = ensureString(raw["title"])
	meta.Author = ensureString(raw["author"])
	meta.Tags = ensureArray(raw["tags"])
	meta.Categories = ensureArray(raw["categories"])
	meta.Excerpt = ensureString(raw["excerpt"])
	meta.FeaturedImage = ensureString(raw["featuredImage"])
	meta.Status = ensureString(raw["status"])
	meta.Date = ensureDate(raw["date"])
	return meta, nil
}

func ensureString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func ensureArray(v any) []string {
	switch list := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(list))
		for _, elem := range list {
			if s := ensureString(elem); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := ensureString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

func ensureDate(v any) time.Time {
	switch d := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return d
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, d); err == nil {
				return t
			}
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}
