package patcher

import (
	"regexp"

	"github.com/gaborage/go-sitesettings/sitesettings"
)

// EnableMultisite turns the multisite flag of the site_settings block on. Only the
// flag's value changes; comments and every other byte stay as they were. When the
// flag is missing it is inserted as the first entry of the block. Applying it to
// its own output returns identical bytes.
func EnableMultisite(src []byte) ([]byte, error) {
	b, err := findBlock(src)
	if err != nil {
		return nil, err
	}

	childIndent := b.childIndent
	if childIndent == "" {
		childIndent = indentUnit
	}

	pattern := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(childIndent) +
		`["']?` + sitesettings.MultisiteKey + `["']?[ \t]*:[ \t]*([^\s#]+)`)
	loc := pattern.FindSubmatchIndex(src[b.bodyStart:b.bodyEnd])

	out := make([]byte, 0, len(src)+len(childIndent)+len(sitesettings.MultisiteKey)+8)
	if loc == nil {
		out = append(out, src[:b.bodyStart]...)
		if b.bodyStart == len(src) && len(src) > 0 && src[len(src)-1] != '\n' {
			out = append(out, '\n')
		}
		out = append(out, childIndent+sitesettings.MultisiteKey+": true\n"...)
		out = append(out, src[b.bodyStart:]...)
		return out, nil
	}

	valueStart, valueEnd := b.bodyStart+loc[2], b.bodyStart+loc[3]
	out = append(out, src[:valueStart]...)
	out = append(out, "true"...)
	out = append(out, src[valueEnd:]...)
	return out, nil
}
