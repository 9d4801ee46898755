package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/stampede/pkg/jsonschema"
)

// EnvPrefix marks environment variables that become test variables:
// STAMPEDE_VAR_token=abc defines {{token}}.
const EnvPrefix = "STAMPEDE_VAR_"

// DefaultUserAgent is sent when settings.userAgent is empty.
const DefaultUserAgent = "stampede"

//go:embed schema.json
var schemaDoc []byte

var testSchema = jsonschema.MustCompile("stampede-test.json", schemaDoc)

// Schema returns the JSON Schema test files are checked against.
func Schema() []byte {
	return schemaDoc
}

// LoadConfig reads, parses and structurally validates a test file, then
// applies defaults and STAMPEDE_VAR_ environment variables. Semantic
// validation is left to Validate.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.Environ())
	ApplyDefaults(cfg)
	return cfg, nil
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path; .json is JSON and
// everything else is YAML. The document is checked against the embedded
// schema before it is decoded.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var cfg TestConfig

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := testSchema.ValidateJSON(data); err != nil {
			return nil, schemaError(err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return &cfg, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("config is empty")
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := testSchema.ValidateJSON(asJSON); err != nil {
		return nil, schemaError(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return &cfg, nil
}

// schemaError converts schema violations to ValidationErrors so callers
// handle both validation layers the same way.
func schemaError(err error) error {
	ves, ok := err.(jsonschema.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid config: %w", err)
	}
	errs := &ValidationErrors{}
	for _, ve := range ves {
		field, msg, found := strings.Cut(ve.Error(), ": ")
		if !found {
			errs.Add("", ve.Error())
			continue
		}
		errs.Add(pointerToField(field), msg)
	}
	return errs
}

// pointerToField turns "/scenario/stages/0/target" into
// "scenario.stages[0].target".
func pointerToField(ptr string) string {
	var sb strings.Builder
	for _, part := range strings.Split(strings.Trim(ptr, "/"), "/") {
		if part == "" {
			continue
		}
		if _, err := strconv.Atoi(part); err == nil {
			sb.WriteString("[" + part + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(part)
	}
	return sb.String()
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
//
// An empty string is zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// EnvVariables returns the STAMPEDE_VAR_ entries of environ with the prefix
// removed.
func EnvVariables(environ []string) map[string]string {
	vars := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if name := strings.TrimPrefix(key, EnvPrefix); name != "" {
			vars[name] = value
		}
	}
	return vars
}

// ApplyEnv overrides file variables with STAMPEDE_VAR_ entries of environ.
func ApplyEnv(cfg *TestConfig, environ []string) {
	env := EnvVariables(environ)
	if len(env) == 0 {
		return
	}
	if cfg.Variables == nil {
		cfg.Variables = make(map[string]Scalar, len(env))
	}
	for name, value := range env {
		cfg.Variables[name] = Scalar(value)
	}
}

// ApplyDefaults fills in values a test may leave out.
func ApplyDefaults(cfg *TestConfig) {
	if cfg.Settings.UserAgent == "" {
		cfg.Settings.UserAgent = DefaultUserAgent
	}

	sc := &cfg.Scenario
	if sc.Executor == "" {
		if len(sc.Stages) > 0 {
			sc.Executor = "ramping-vus"
		} else {
			sc.Executor = "constant-vus"
		}
	}
	for i := range sc.Requests {
		if sc.Requests[i].Method == "" {
			sc.Requests[i].Method = "GET"
		}
		if r := sc.Requests[i].Rate; r != nil && r.ExpectStatus == 0 {
			r.ExpectStatus = 200
		}
	}

	if len(cfg.Summary.Outputs) == 0 {
		cfg.Summary.Outputs = []OutputConfig{{Format: "text", Path: "stdout"}}
	}
	for i := range cfg.Summary.Outputs {
		if cfg.Summary.Outputs[i].Path == "" {
			cfg.Summary.Outputs[i].Path = "stdout"
		}
	}
}

// Vars returns the variables requests may reference: settings.baseUrl as
// {{baseUrl}} and {{baseURL}}, then the variables section.
func (c *TestConfig) Vars() map[string]string {
	vars := make(map[string]string, len(c.Variables)+2)
	if c.Settings.BaseURL != "" {
		vars["baseUrl"] = c.Settings.BaseURL
		vars["baseURL"] = c.Settings.BaseURL
	}
	for name, value := range c.Variables {
		vars[name] = value.String()
	}
	return vars
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// ResolveVariables replaces {{name}} placeholders with values from vars.
// Unresolved variables are left as-is.
func ResolveVariables(input string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(input, func(m string) string {
		if v, ok := vars[placeholderRe.FindStringSubmatch(m)[1]]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the distinct variable names referenced in input, in
// sorted order.
func Placeholders(input string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(input, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}
