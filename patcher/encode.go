package patcher

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gaborage/go-sitesettings/sitesettings"
)

// Section markers written above each part of a server entry.
const (
	connectionMarker = "# DB Arguments"
	multisiteMarker  = "# Multisite Arguments"
	sitesMarker      = "# Site(s) on this server"
)

// EncodeBlock renders a declaration as the lines of a site_settings body, relative
// to the block's own indentation. Sites are always written as a base URL to tenant
// ID mapping so explicit IDs survive the round trip.
func EncodeBlock(raw sitesettings.Raw) ([]string, error) {
	lines := []string{
		sitesettings.MultisiteKey + ": " + strconv.FormatBool(raw.Multisite),
		"",
	}

	if len(raw.Servers) == 0 {
		return append(lines, sitesettings.ServersKey+": []"), nil
	}

	lines = append(lines, sitesettings.ServersKey+":")
	for ndx, server := range raw.Servers {
		if ndx > 0 {
			lines = append(lines, "")
		}
		entry, err := encodeServer(server)
		if err != nil {
			return nil, fmt.Errorf("server %d: %w", ndx, err)
		}
		lines = append(lines, indentUnit+"- "+connectionMarker)
		for _, line := range entry {
			if line == "" {
				lines = append(lines, "")
				continue
			}
			lines = append(lines, indentUnit+indentUnit+line)
		}
	}
	return lines, nil
}

func encodeServer(server sitesettings.RawServer) ([]string, error) {
	lines, err := encodeConnection(server.Connection)
	if err != nil {
		return nil, err
	}

	lines = append(lines,
		"",
		multisiteMarker,
		sitesettings.SubdomainsKey+": "+strconv.FormatBool(server.Subdomains),
		"",
		sitesMarker,
	)

	if len(server.Sites) == 0 {
		return append(lines, sitesettings.SitesKey+": {}"), nil
	}

	lines = append(lines, sitesettings.SitesKey+":")
	for pos, site := range server.Sites {
		id := site.TenantID
		if server.Positional {
			id = pos + 1
		}
		lines = append(lines, indentUnit+strconv.Quote(site.BaseURL)+": "+strconv.Itoa(id))
	}
	return lines, nil
}

// encodeConnection marshals the connection parameters as one ordered mapping so
// nested values and strings that need quoting come out as valid YAML.
func encodeConnection(params []sitesettings.Param) ([]string, error) {
	if len(params) == 0 {
		return nil, nil
	}

	mapping := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range params {
		value := &yaml.Node{}
		if err := value.Encode(p.Value); err != nil {
			return nil, fmt.Errorf("connection parameter %q: %w", p.Key, err)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Key}
		mapping.Content = append(mapping.Content, key, value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(len(indentUnit))
	if err := enc.Encode(mapping); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n"), nil
}
