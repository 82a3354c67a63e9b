package skill

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontMatter is the canonical YAML shape written between the `---`
// fences. Field order here drives yaml.v3's emission order, which is
// what makes the serialization canonical: id, name, version, author,
// description, layer, tags, provides, requires, extends, metadata.
type frontMatter struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Version     string         `yaml:"version"`
	Author      *string        `yaml:"author,omitempty"`
	Description string         `yaml:"description"`
	Layer       string         `yaml:"layer"`
	Tags        []string       `yaml:"tags,omitempty"`
	Provides    []string       `yaml:"provides,omitempty"`
	Requires    []string       `yaml:"requires,omitempty"`
	Extends     *string        `yaml:"extends,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty"`
}

// CanonicalBytes renders s as the canonical byte stream whose SHA-256
// is the skill's content hash: `---`-fenced front matter in stable key
// order, a blank line, then the LF-normalized, trailing-whitespace-
// trimmed body, ending in exactly one trailing newline.
func CanonicalBytes(s *Skill) ([]byte, error) {
	fm := frontMatter{
		ID:          s.ID,
		Name:        s.Name,
		Version:     s.Version,
		Author:      s.Author,
		Description: s.Description,
		Layer:       s.Layer.String(),
		Tags:        sortedCopy(s.Tags),
		Provides:    sortedCopy(s.Provides),
		Requires:    append([]string(nil), s.Requires...),
		Extends:     s.Extends,
		Metadata:    s.Metadata,
	}

	fmBytes, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fmBytes)
	b.WriteString("---\n\n")
	b.WriteString(normalizeBody(renderBody(s.Sections)))

	return []byte(b.String()), nil
}

// ContentHash computes the canonical SHA-256 hex digest for s.
func ContentHash(s *Skill) (string, error) {
	bytes, err := CanonicalBytes(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(bytes)
	return hex.EncodeToString(sum[:]), nil
}

// renderBody re-emits the section/block tree as markdown body text,
// the inverse of the body half of the parser.
func renderBody(sections []Section) string {
	var b strings.Builder
	for _, sec := range sections {
		b.WriteString("## ")
		b.WriteString(sec.Title)
		if sec.Tier != TierStandard {
			b.WriteString(" (")
			b.WriteString(sec.Tier.String())
			b.WriteString(")")
		}
		b.WriteString("\n\n")
		for _, blk := range sec.Blocks {
			switch blk.Kind {
			case BlockCode:
				b.WriteString("```\n")
				b.WriteString(blk.Content)
				b.WriteString("\n```\n\n")
			default:
				b.WriteString(blk.Content)
				b.WriteString("\n\n")
			}
		}
	}
	return b.String()
}

// normalizeBody normalizes line endings to LF, trims trailing whitespace
// from each line, and ensures exactly one trailing newline.
func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	joined := strings.Join(lines, "\n")
	joined = strings.TrimRight(joined, "\n")
	return joined + "\n"
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
