package logger

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultMaskValue replaces sensitive values in log output.
const DefaultMaskValue = "***"

// FilterConfig defines which fields are masked.
type FilterConfig struct {
	// SensitiveFields are matched case-insensitively as substrings of field names.
	SensitiveFields []string
	MaskValue       string
}

// DefaultFilterConfig masks credentials that appear in server connection parameters.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"pass", "pwd", "secret", "token",
			"authorization", "credential", "dsn",
		},
		MaskValue: DefaultMaskValue,
	}
}

// dsnPassword matches the password of a go-sql-driver style DSN: user:password@tcp(...)
var dsnPassword = regexp.MustCompile(`^([^:@/]*):([^@]*)@`)

// SensitiveDataFilter masks sensitive values before they reach the log writer.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a filter. A nil config uses DefaultFilterConfig.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// FilterString masks value when key names a sensitive field. URLs and DSNs keep
// their structure with only the password replaced.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if f == nil || !f.isSensitiveField(key) || value == "" {
		return value
	}
	if strings.Contains(value, "://") {
		return f.maskURL(value)
	}
	if dsnPassword.MatchString(value) {
		return dsnPassword.ReplaceAllString(value, "${1}:"+f.config.MaskValue+"@")
	}
	return f.config.MaskValue
}

// maskURL replaces the password of a URL, keeping the rest readable.
func (f *SensitiveDataFilter) maskURL(value string) string {
	u, err := url.Parse(value)
	if err != nil {
		return f.config.MaskValue
	}
	if u.User == nil {
		return value
	}
	if _, ok := u.User.Password(); !ok {
		return value
	}
	username := url.User(u.User.Username()).String()
	u.User = nil
	rest := strings.TrimPrefix(u.String(), u.Scheme+"://")
	return u.Scheme + "://" + username + ":" + f.config.MaskValue + "@" + rest
}

// FilterValue masks value when key names a sensitive field and walks nested
// maps and slices of the shapes YAML decoding produces.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	if f == nil {
		return value
	}
	if f.isSensitiveField(key) {
		if s, ok := value.(string); ok {
			return f.FilterString(key, s)
		}
		return f.config.MaskValue
	}

	switch v := value.(type) {
	case map[string]any:
		return f.FilterFields(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = f.FilterValue(key, elem)
		}
		return out
	default:
		return value
	}
}

// FilterFields filters a map of fields for sensitive data
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	if f == nil {
		return fields
	}
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		filtered[key] = f.FilterValue(key, value)
	}
	return filtered
}

func (f *SensitiveDataFilter) isSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, sensitive := range f.config.SensitiveFields {
		if strings.Contains(lower, strings.ToLower(sensitive)) {
			return true
		}
	}
	return false
}
