package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gnana997/designparity/pkg/config"
)

// envConfigPath points at an alternate project config file.
const envConfigPath = "DESIGNPARITY_CONFIG"

// resolveConfigPath returns the config path to use, applying the fallback chain:
//  1. Explicit --config flag value (non-empty override)
//  2. DESIGNPARITY_CONFIG environment variable
//  3. Default: .designparity/config.yaml
func resolveConfigPath(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if env := os.Getenv(envConfigPath); env != "" {
		return env
	}
	return config.ProjectFile
}

func loadOpts(args []string) config.LoadOptions {
	return config.LoadOptions{Path: resolveConfigPath(flagValue(args, "config"))}
}

// loadSettings loads and validates layered settings for a command run.
func loadSettings(args []string) (*config.Settings, error) {
	st, err := config.Load(loadOpts(args))
	if err != nil {
		return nil, err
	}
	if errs := st.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return st, nil
}

// flagValue scans args for "--name value" and "--name=value" forms.
func flagValue(args []string, name string) string {
	long := "--" + name
	for i, arg := range args {
		if arg == long && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, long+"=") {
			return strings.TrimPrefix(arg, long+"=")
		}
	}
	return ""
}

// positionals returns the non-flag arguments. valueFlags names the flags
// that consume the following argument.
func positionals(args []string, valueFlags map[string]bool) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--") {
			if !strings.Contains(arg, "=") && valueFlags[arg] {
				i++
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}
