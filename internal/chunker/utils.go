package chunker

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	frontmatterRegex  = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n`)
	headerRegex       = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	mdxComponentRegex = regexp.MustCompile(`<[A-Z]\w+[^>]*>.*?</[A-Z]\w+>|<[A-Z]\w+[^/>]*/>`)
	importRegex       = regexp.MustCompile(`(?m)^import\s+.*$`)
)

// strips frontmatter, mdx imports and components from a markdown file
func ParseMarkdown(content string) Page {
	frontmatter := extractFrontmatter(content)

	body := frontmatterRegex.ReplaceAllString(content, "")
	body = importRegex.ReplaceAllString(body, "")
	body = mdxComponentRegex.ReplaceAllString(body, "")
	body = strings.TrimSpace(body)

	title, _ := frontmatter["title"].(string)
	if title == "" {
		if m := headerRegex.FindStringSubmatch(body); len(m) > 1 {
			title = strings.TrimSpace(m[1])
		}
	}

	return Page{Title: title, Body: body, Frontmatter: frontmatter}
}

// frontmatter that is not valid yaml is ignored
func extractFrontmatter(content string) map[string]any {
	metadata := make(map[string]any)

	matches := frontmatterRegex.FindStringSubmatch(content)
	if len(matches) < 2 {
		return metadata
	}

	if err := yaml.Unmarshal([]byte(matches[1]), &metadata); err != nil || metadata == nil {
		return make(map[string]any)
	}

	return metadata
}
