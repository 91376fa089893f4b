// Package parser splits Markdown documents into chunks sized for embedding.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed Markdown document.
type Document struct {
	// Title from frontmatter or the first h1
	Title string

	// Body after the frontmatter block
	Body string

	// Sections in document order, one per heading
	Sections []Section
}

// Section is a heading and the content beneath it.
type Section struct {
	Level   int    // 1-6 for h1-h6
	Heading string // The heading text
	Path    string // Full path like "Anatomia > Układ krążenia"
	Content string // Content under this heading
}

var (
	headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	h1Regex      = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// Parse parses Markdown into a Document. Frontmatter is read only for the
// title; malformed YAML is ignored rather than failing the whole document.
func Parse(content string) *Document {
	doc := &Document{}

	remaining := content
	var frontmatter map[string]any
	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx > 0 {
			raw := content[4 : 4+endIdx]
			remaining = strings.TrimLeft(content[4+endIdx+4:], "\n")
			if err := yaml.Unmarshal([]byte(raw), &frontmatter); err != nil {
				frontmatter = nil
			}
		}
	}

	doc.Body = remaining
	doc.Title = extractTitle(frontmatter, remaining)
	doc.Sections = parseSections(remaining)

	return doc
}

// extractTitle gets the title from frontmatter or the first h1.
func extractTitle(fm map[string]any, content string) string {
	if title, ok := fm["title"].(string); ok && title != "" {
		return title
	}

	if match := h1Regex.FindStringSubmatch(content); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}

	return ""
}

// parseSections extracts sections from Markdown content.
func parseSections(content string) []Section {
	var sections []Section

	scanner := bufio.NewScanner(strings.NewReader(content))
	var currentPath []string
	var currentLevels []int

	var current *Section
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(body.String())
			sections = append(sections, *current)
			body.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		match := headingRegex.FindStringSubmatch(line)
		if match == nil {
			if current != nil {
				body.WriteString(line)
				body.WriteString("\n")
			}
			continue
		}

		flush()

		level := len(match[1])
		heading := strings.TrimSpace(match[2])

		// Pop siblings and deeper levels off the path
		for len(currentLevels) > 0 && currentLevels[len(currentLevels)-1] >= level {
			currentPath = currentPath[:len(currentPath)-1]
			currentLevels = currentLevels[:len(currentLevels)-1]
		}
		currentPath = append(currentPath, heading)
		currentLevels = append(currentLevels, level)

		current = &Section{
			Level:   level,
			Heading: heading,
			Path:    strings.Join(currentPath, " > "),
		}
	}

	flush()

	return sections
}
