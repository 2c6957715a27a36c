package patcher

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/gaborage/go-sitesettings/sitesettings"
)

// indentUnit is the indentation added per nesting level in generated blocks.
const indentUnit = "  "

// anchorPattern matches the top-level anchor key only, the one the loader decodes.
var anchorPattern = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(sitesettings.AnchorKey) + `[ \t]*:[ \t]*(?:#.*)?\r?$`)

// block locates the body of the site_settings mapping inside source text.
type block struct {
	childIndent string // indentation of the block's entries, empty when the body is empty
	bodyStart   int    // offset of the first byte after the anchor line
	bodyEnd     int    // offset just past the last line that belongs to the body
}

// findBlock finds the top-level anchor line and the indented lines that follow
// it. Blank lines and comments do not end the body, but only entries extend it,
// so comments trailing the last entry stay outside and survive a splice.
func findBlock(src []byte) (block, error) {
	loc := anchorPattern.FindSubmatchIndex(src)
	if loc == nil {
		return block{}, ErrAnchorNotFound
	}

	b := block{bodyStart: loc[1]}
	if b.bodyStart < len(src) && src[b.bodyStart] == '\n' {
		b.bodyStart++
	}
	b.bodyEnd = b.bodyStart

	offset := b.bodyStart
	for offset < len(src) {
		end := bytes.IndexByte(src[offset:], '\n')
		next := len(src)
		if end >= 0 {
			next = offset + end + 1
		}
		line := string(src[offset:next])
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "#"):
		case isNested(line):
			if b.childIndent == "" {
				b.childIndent = line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			}
			b.bodyEnd = next
		default:
			return b, nil
		}
		offset = next
	}

	return b, nil
}

// isNested reports whether line is indented under the anchor.
func isNested(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// spliceBlock replaces the body of the site_settings block with lines, indented one
// level under the anchor. Bytes outside the body are returned unchanged.
func spliceBlock(src []byte, lines []string) ([]byte, error) {
	b, err := findBlock(src)
	if err != nil {
		return nil, err
	}

	var body strings.Builder
	for _, line := range lines {
		if line != "" {
			body.WriteString(indentUnit)
			body.WriteString(line)
		}
		body.WriteByte('\n')
	}

	out := make([]byte, 0, len(src)+body.Len())
	out = append(out, src[:b.bodyStart]...)
	if b.bodyStart == len(src) && len(src) > 0 && src[len(src)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, body.String()...)
	out = append(out, src[b.bodyEnd:]...)
	return out, nil
}
