// Package config loads the pipeline's runtime settings. Values are layered:
// embedded defaults, then an optional .env file, then the project file, then
// the process environment, with later layers winning. Everything the core
// consumes is injected from here; no component reads the environment on its
// own behalf except the provider resolver, which shares the same variable
// names.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gnana997/designparity/pkg/fault"
	"github.com/gnana997/designparity/pkg/provider"
	"github.com/gnana997/designparity/pkg/schema"
	"github.com/gnana997/designparity/pkg/webx"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ProjectFile is the per-project settings file, resolved relative to the
// working directory.
const ProjectFile = ".designparity/config.yaml"

// Environment variables owned by this tool. The FIGMA_* names live in
// pkg/provider because the resolver also reads them directly.
const (
	EnvBrowserURL       = "DESIGNPARITY_BROWSER_URL"
	EnvNavTimeoutMS     = "DESIGNPARITY_NAV_TIMEOUT_MS"
	EnvElementCap       = "DESIGNPARITY_ELEMENT_CAP"
	EnvColorTolerance   = "DESIGNPARITY_COLOR_TOLERANCE"
	EnvThreshold        = "DESIGNPARITY_THRESHOLD"
	EnvSlowSitePatterns = "DESIGNPARITY_SLOW_SITE_PATTERNS"
	EnvLogLevel         = "DESIGNPARITY_LOG_LEVEL"
	EnvLogFormat        = "DESIGNPARITY_LOG_FORMAT"
	EnvMCPLog           = "DESIGNPARITY_MCP_LOG"
)

// Settings is the full runtime configuration.
type Settings struct {
	// ConnectionMode forces how Figma is reached. Empty lets the provider
	// resolver decide.
	ConnectionMode string `yaml:"connection_mode"`
	RemoteMCPURL   string `yaml:"remote_mcp_url"`
	DesktopPort    int    `yaml:"desktop_mcp_port"`
	ProxyURL       string `yaml:"proxy_url"`

	// FigmaToken comes from the environment only; tokens never belong in a
	// project file that gets committed.
	FigmaToken string `yaml:"-"`

	BrowserURL       string   `yaml:"browser_url"`
	NavTimeoutMS     int      `yaml:"nav_timeout_ms"`
	ElementCap       int      `yaml:"element_cap"`
	SlowSitePatterns []string `yaml:"slow_site_patterns"`

	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	MCPLogPath string `yaml:"mcp_log"`

	Comparison schema.ComparisonSettings `yaml:"comparison"`
}

// LoadOptions control where Load looks.
type LoadOptions struct {
	// Path overrides the project file location. Empty means ProjectFile; a
	// missing file is not an error either way.
	Path string
	// DotEnvPath points at a .env file read as the lowest-priority
	// environment layer. Empty tries ./.env.
	DotEnvPath string
	// Getenv defaults to os.Getenv. Injected in tests.
	Getenv func(string) string
}

// Load builds Settings from all layers. A malformed project file is an
// error; a missing one is not.
func Load(opts LoadOptions) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(defaultsYAML, &s); err != nil {
		return nil, fault.Wrap(fault.Validation, fault.Infrastructure, err, "parse embedded defaults")
	}

	path := opts.Path
	if path == "" {
		path = ProjectFile
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// no project file
	case err != nil:
		return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "read config file %s", path)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "parse config file %s", path)
		}
	}

	s.applyEnv(lookupFunc(opts))
	return &s, nil
}

// lookupFunc layers the real environment over the .env file: a variable set
// in the process wins, one only present in .env fills the gap.
func lookupFunc(opts LoadOptions) func(string) string {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	dotPath := opts.DotEnvPath
	if dotPath == "" {
		dotPath = ".env"
	}
	fileVars, err := godotenv.Read(dotPath)
	if err != nil {
		fileVars = nil
	}
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fileVars[key]
	}
}

func (s *Settings) applyEnv(get func(string) string) {
	setStr(&s.ConnectionMode, get(provider.EnvConnectionMode))
	setStr(&s.RemoteMCPURL, get(provider.EnvRemoteURL))
	setInt(&s.DesktopPort, get(provider.EnvDesktopPort))
	setStr(&s.ProxyURL, get(provider.EnvProxyURL))
	setStr(&s.FigmaToken, get(provider.EnvAccessToken))
	setStr(&s.BrowserURL, get(EnvBrowserURL))
	setInt(&s.NavTimeoutMS, get(EnvNavTimeoutMS))
	setInt(&s.ElementCap, get(EnvElementCap))
	setInt(&s.Comparison.ColorTolerance, get(EnvColorTolerance))
	setFloat(&s.Comparison.Threshold, get(EnvThreshold))
	if v := get(EnvSlowSitePatterns); v != "" {
		s.SlowSitePatterns = webx.SplitPatterns(v)
	}
	setStr(&s.LogLevel, get(EnvLogLevel))
	setStr(&s.LogFormat, get(EnvLogFormat))
	setStr(&s.MCPLogPath, get(EnvMCPLog))
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v string) {
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		*dst = n
	}
}

func setFloat(dst *float64, v string) {
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		*dst = f
	}
}

// NavTimeout converts the millisecond knob.
func (s *Settings) NavTimeout() time.Duration {
	return time.Duration(s.NavTimeoutMS) * time.Millisecond
}

// Validate checks every field and returns all violations found.
func (s *Settings) Validate() []error {
	var errs []error
	if s.ConnectionMode != "" {
		if _, ok := provider.ParseMode(s.ConnectionMode); !ok {
			errs = append(errs, fmt.Errorf("unknown connection_mode %q", s.ConnectionMode))
		}
	}
	if s.NavTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("nav_timeout_ms must be positive, got %d", s.NavTimeoutMS))
	}
	if s.ElementCap <= 0 {
		errs = append(errs, fmt.Errorf("element_cap must be positive, got %d", s.ElementCap))
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", s.LogLevel))
	}
	switch strings.ToLower(s.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", s.LogFormat))
	}
	errs = append(errs, s.Comparison.Validate()...)
	return errs
}
