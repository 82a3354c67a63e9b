package skill

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError carries the source position of a parse failure, per
// spec.md §4.5 ("a structured parse error carrying source line/column").
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// rawFrontMatter mirrors frontMatter's known keys; Parse collects
// unknown keys (and a nested metadata map) separately into
// Skill.Metadata.
type rawFrontMatter struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Author      *string  `yaml:"author"`
	Description string   `yaml:"description"`
	Layer       string   `yaml:"layer"`
	Tags        []string `yaml:"tags"`
	Provides    []string `yaml:"provides"`
	Requires    []string `yaml:"requires"`
	Extends     *string  `yaml:"extends"`
}

var knownFrontMatterKeys = map[string]struct{}{
	"id": {}, "name": {}, "version": {}, "author": {}, "description": {},
	"layer": {}, "tags": {}, "provides": {}, "requires": {}, "extends": {},
	"metadata": {},
}

// Parse parses a UTF-8 markdown document with YAML front matter into a
// Skill. The parser is pure: it performs no I/O and the source path
// must be supplied by the caller for provenance.
func Parse(source string, sourcePath string) (*Skill, error) {
	lines := splitLines(source)

	fmStart, fmEnd, err := findFrontMatterFences(lines)
	if err != nil {
		return nil, err
	}

	fmText := strings.Join(lines[fmStart+1:fmEnd], "\n")

	var raw rawFrontMatter
	if err := yaml.Unmarshal([]byte(fmText), &raw); err != nil {
		return nil, &ParseError{Line: fmStart + 1, Column: 1, Message: "invalid front matter: " + err.Error()}
	}

	var unknownBag map[string]any
	var genericMap map[string]any
	if uerr := yaml.Unmarshal([]byte(fmText), &genericMap); uerr == nil {
		for k, v := range genericMap {
			if _, known := knownFrontMatterKeys[k]; known {
				continue
			}
			if unknownBag == nil {
				unknownBag = make(map[string]any)
			}
			unknownBag[k] = v
		}
		if nested, ok := genericMap["metadata"].(map[string]any); ok {
			if unknownBag == nil {
				unknownBag = make(map[string]any)
			}
			for k, v := range nested {
				unknownBag[k] = v
			}
		}
	}

	if raw.ID == "" {
		return nil, &ParseError{Line: fmStart + 1, Column: 1, Message: "front matter missing required key: id"}
	}
	if raw.Name == "" {
		return nil, &ParseError{Line: fmStart + 1, Column: 1, Message: "front matter missing required key: name"}
	}

	bodyLines := lines[fmEnd+1:]
	sections, perr := parseBody(bodyLines, fmEnd+1)
	if perr != nil {
		return nil, perr
	}

	s := &Skill{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Version:     raw.Version,
		Author:      raw.Author,
		Layer:       ParseLayer(raw.Layer),
		Source:      Provenance{SourcePath: sourcePath},
		Tags:        normalizeTags(raw.Tags),
		Provides:    raw.Provides,
		Requires:    raw.Requires,
		Extends:     raw.Extends,
		Metadata:    unknownBag,
		Sections:    sections,
	}
	return s, nil
}

func findFrontMatterFences(lines []string) (start, end int, err error) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return 0, 0, &ParseError{Line: 1, Column: 1, Message: "document must start with a '---' front-matter fence"}
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return 0, i, nil
		}
	}
	return 0, 0, &ParseError{Line: 1, Column: 1, Message: "unterminated front-matter fence"}
}

// parseBody segments the body into sections by `##` headings, and each
// section's content into blocks per spec.md §4.5.
func parseBody(lines []string, lineOffset int) ([]Section, *ParseError) {
	var sections []Section
	var cur *Section
	var paraBuf []string
	var inCode bool
	var codeBuf []string

	flushParagraph := func() {
		if cur == nil {
			return
		}
		text := strings.TrimSpace(strings.Join(paraBuf, "\n"))
		paraBuf = nil
		if text == "" {
			return
		}
		cur.Blocks = append(cur.Blocks, classifyBlock(text, len(cur.Blocks)))
	}

	for i, raw := range lines {
		lineNo := lineOffset + i + 1
		trimmed := strings.TrimRight(raw, " \t")

		if strings.HasPrefix(strings.TrimSpace(trimmed), "```") {
			if inCode {
				if cur == nil {
					return nil, &ParseError{Line: lineNo, Column: 1, Message: "code block outside of any section"}
				}
				cur.Blocks = append(cur.Blocks, Block{
					ID:      blockID(len(cur.Blocks)),
					Kind:    BlockCode,
					Content: strings.Join(codeBuf, "\n"),
				})
				codeBuf = nil
				inCode = false
			} else {
				flushParagraph()
				inCode = true
			}
			continue
		}
		if inCode {
			codeBuf = append(codeBuf, raw)
			continue
		}

		if strings.HasPrefix(trimmed, "## ") {
			flushParagraph()
			if cur != nil {
				sections = append(sections, *cur)
			}
			title, tier := parseHeading(strings.TrimPrefix(trimmed, "## "))
			cur = &Section{ID: sectionID(title, len(sections)), Title: title, Tier: tier}
			continue
		}

		if strings.TrimSpace(trimmed) == "" {
			flushParagraph()
			continue
		}

		paraBuf = append(paraBuf, trimmed)
	}
	if inCode {
		return nil, &ParseError{Line: lineOffset + len(lines), Column: 1, Message: "unterminated code fence"}
	}
	flushParagraph()
	if cur != nil {
		sections = append(sections, *cur)
	}
	return sections, nil
}

// parseHeading splits a `## Title (tier)` heading into its title and
// disclosure tier, defaulting to standard per spec.md §4.5.
func parseHeading(heading string) (title string, tier Tier) {
	heading = strings.TrimSpace(heading)
	if strings.HasSuffix(heading, ")") {
		if idx := strings.LastIndex(heading, "("); idx >= 0 {
			marker := strings.TrimSuffix(heading[idx+1:], ")")
			switch marker {
			case "core", "standard", "full", "complete":
				return strings.TrimSpace(heading[:idx]), ParseTier(marker)
			}
		}
	}
	return heading, TierStandard
}

// classifyBlock determines a prose block's BlockKind by its leading
// syntax, per spec.md §4.5: callouts start with '>', lists with '-
// '/'* ' runs, tables use pipe syntax, everything else is prose.
func classifyBlock(text string, index int) Block {
	kind := BlockProse
	firstLine := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		firstLine = text[:idx]
	}
	switch {
	case strings.HasPrefix(firstLine, ">"):
		kind = BlockCallout
	case strings.HasPrefix(firstLine, "- ") || strings.HasPrefix(firstLine, "* "):
		kind = BlockList
	case strings.HasPrefix(firstLine, "|"):
		kind = BlockTable
	}
	return Block{ID: blockID(index), Kind: kind, Content: text}
}

func blockID(index int) string {
	return fmt.Sprintf("block-%d", index)
}

func sectionID(title string, index int) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = fmt.Sprintf("section-%d", index)
	}
	return slug
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, strings.ToLower(strings.TrimSpace(t)))
	}
	return sortedCopy(out)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
