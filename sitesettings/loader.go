package sitesettings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// AnchorKey is the top-level key whose block holds the site declaration.
const AnchorKey = "site_settings"

// Keys with meaning inside a server entry; every other key is a connection parameter.
const (
	MultisiteKey  = "multisite"
	ServersKey    = "servers"
	SubdomainsKey = "subdomains"
	SitesKey      = "sites"
)

// Load reads and normalizes the site settings file at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newMissingSourceError(path)
		}
		return nil, &LoadError{Kind: ErrMissingSource, Path: path, Server: -1, Message: "unreadable", Cause: err}
	}

	model, err := Parse(data)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Path == "" {
			loadErr.Path = path
		}
		return nil, err
	}
	return model, nil
}

// Parse decodes the site settings source text and normalizes it.
func Parse(data []byte) (*Model, error) {
	raw, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Normalize(raw)
}

// Decode reads the declaration from source text without normalizing it.
func Decode(data []byte) (Raw, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Raw{}, newMalformedSourceError(-1, "invalid yaml", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return Raw{}, newMalformedSourceError(-1, "document is not a mapping", nil)
	}

	block := mappingValue(doc.Content[0], AnchorKey)
	if block == nil {
		return Raw{}, newMalformedSourceError(-1, fmt.Sprintf("%q block not found", AnchorKey), nil)
	}
	if block.Kind != yaml.MappingNode {
		return Raw{}, newMalformedSourceError(-1, fmt.Sprintf("%q must be a mapping", AnchorKey), nil)
	}

	var raw Raw
	for i := 0; i+1 < len(block.Content); i += 2 {
		key, value := block.Content[i], block.Content[i+1]
		switch key.Value {
		case MultisiteKey:
			if err := value.Decode(&raw.Multisite); err != nil {
				return Raw{}, newMalformedSourceError(-1, "multisite must be a boolean", err)
			}
		case ServersKey:
			servers, err := decodeServers(value)
			if err != nil {
				return Raw{}, err
			}
			raw.Servers = servers
		}
	}

	return raw, nil
}

func decodeServers(node *yaml.Node) ([]RawServer, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, newMalformedSourceError(-1, "servers must be a list", nil)
	}

	servers := make([]RawServer, 0, len(node.Content))
	for ndx, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, newMalformedSourceError(ndx, "server must be a mapping", nil)
		}
		server, err := decodeServer(ndx, item)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func decodeServer(ndx int, node *yaml.Node) (RawServer, error) {
	var server RawServer
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case SubdomainsKey:
			if err := value.Decode(&server.Subdomains); err != nil {
				return RawServer{}, newMalformedSourceError(ndx, "subdomains must be a boolean", err)
			}
		case SitesKey:
			sites, positional, err := decodeSites(ndx, value)
			if err != nil {
				return RawServer{}, err
			}
			server.Sites = sites
			server.Positional = positional
		default:
			var v any
			if err := value.Decode(&v); err != nil {
				return RawServer{}, newMalformedSourceError(ndx, fmt.Sprintf("connection parameter %q", key.Value), err)
			}
			server.Connection = append(server.Connection, Param{Key: key.Value, Value: v})
		}
	}
	return server, nil
}

func decodeSites(ndx int, node *yaml.Node) ([]Site, bool, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		sites := make([]Site, 0, len(node.Content))
		for pos, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, false, newMalformedSourceError(ndx, "positional sites must be base url strings", nil)
			}
			sites = append(sites, Site{BaseURL: item.Value, TenantID: pos})
		}
		return sites, true, nil

	case yaml.MappingNode:
		sites := make([]Site, 0, len(node.Content)/2)
		seen := make(map[string]struct{}, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			baseURL := node.Content[i].Value
			if _, dup := seen[baseURL]; dup {
				return nil, false, newMalformedSourceError(ndx, fmt.Sprintf("base url %q declared twice", baseURL), nil)
			}
			seen[baseURL] = struct{}{}

			var id int
			if err := node.Content[i+1].Decode(&id); err != nil {
				return nil, false, newMalformedSourceError(ndx, fmt.Sprintf("tenant id of %q must be an integer", baseURL), err)
			}
			if id <= 0 {
				return nil, false, newMalformedSourceError(ndx, fmt.Sprintf("tenant id of %q must be positive", baseURL), nil)
			}
			sites = append(sites, Site{BaseURL: baseURL, TenantID: id})
		}
		return sites, false, nil

	default:
		return nil, false, newMalformedSourceError(ndx, "sites must be a mapping or a list", nil)
	}
}

// Normalize turns a raw declaration into a Model: positional site lists get tenant
// IDs 1..N in list order, every base URL is parsed, and the reverse tenant index is
// built. Normalizing the Raw of an existing Model yields identical tenant IDs.
func Normalize(raw Raw) (*Model, error) {
	model := &Model{Multisite: raw.Multisite, Servers: make([]*ServerDeclaration, 0, len(raw.Servers))}

	for ndx, rs := range raw.Servers {
		sites := make([]Site, len(rs.Sites))
		for i, site := range rs.Sites {
			if rs.Positional {
				site.TenantID = i + 1
			}
			sites[i] = site
		}

		server := &ServerDeclaration{
			Connection: append([]Param(nil), rs.Connection...),
			Subdomains: rs.Subdomains,
			Sites:      sites,
			tenants:    make(map[string]int, len(sites)),
			baseURLs:   make(map[int]string, len(sites)),
			urls:       make(map[string]TenantURL, len(sites)),
		}

		for _, site := range sites {
			u, err := ParseTenantURL(site.BaseURL)
			if err != nil {
				return nil, newMalformedURLError(ndx, site.BaseURL, err)
			}
			if other, dup := server.baseURLs[site.TenantID]; dup {
				return nil, newDuplicateTenantError(ndx, site.BaseURL, site.TenantID, other)
			}
			server.tenants[site.BaseURL] = site.TenantID
			server.baseURLs[site.TenantID] = site.BaseURL
			server.urls[site.BaseURL] = u
		}

		model.Servers = append(model.Servers, server)
	}

	return model, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func stringify(v any) string {
	return fmt.Sprint(v)
}
