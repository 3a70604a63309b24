package content

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var (
	yamlDelim = []byte("---")
	tomlOpen  = []byte("+++")
)

// SplitFrontmatter separates a markdown source's frontmatter block from its
// body (spec §4.4: "split frontmatter (YAML or TOML) from body"). Supports
// YAML delimited by `---` and TOML delimited by `+++`. Returns an empty
// frontmatter map and the whole source as body if neither delimiter opens
// the file.
func SplitFrontmatter(source []byte) (fm map[string]interface{}, body []byte, err error) {
	trimmed := bytes.TrimLeft(source, "\r\n\t ")

	switch {
	case bytes.HasPrefix(trimmed, yamlDelim):
		return splitDelimited(trimmed, yamlDelim, decodeYAML)
	case bytes.HasPrefix(trimmed, tomlOpen):
		return splitDelimited(trimmed, tomlOpen, decodeTOML)
	default:
		return map[string]interface{}{}, source, nil
	}
}

func splitDelimited(source []byte, delim []byte, decode func([]byte) (map[string]interface{}, error)) (map[string]interface{}, []byte, error) {
	rest := source[len(delim):]
	idx := bytes.Index(rest, delim)
	if idx < 0 {
		// No closing delimiter: treat the whole thing as body, matching
		// the teacher's GetBodyHash fallback when fewer than 3 parts split
		// out.
		return map[string]interface{}{}, source, nil
	}

	raw := rest[:idx]
	body := bytes.TrimLeft(rest[idx+len(delim):], "\r\n")

	fm, err := decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("content: parse frontmatter: %w", err)
	}
	if fm == nil {
		fm = map[string]interface{}{}
	}
	return fm, body, nil
}

func decodeYAML(raw []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeTOML(raw []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// BodyOnly strips a leading frontmatter block and returns only the trimmed
// body, used where callers want source-for-hashing without caring about
// parsed frontmatter values (kosh's GetBodyHash pattern, generalized to the
// cascade/parsed-content hashing paths).
func BodyOnly(source []byte) []byte {
	_, body, err := SplitFrontmatter(source)
	if err != nil {
		return bytes.TrimSpace(source)
	}
	return bytes.TrimSpace(body)
}

// isIndexFile reports whether a content filename marks its directory as a
// Section (spec §4.4: "_index.md").
func isIndexFile(name string) bool {
	return strings.EqualFold(name, "_index.md")
}
