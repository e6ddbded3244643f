package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
// Supports both single-file mode and multi-file mode via the include array.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.Files = []string{absPath}

	if len(cfg.Include) > 0 {
		visited := map[string]bool{absPath: true}
		if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	cfg = applyConfigDefaults(cfg)

	// Hash-verify all configuration files (root config + all includes)
	if err := verifyAllConfigHashes(cfg.Files); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $LANES_CONFIG, ~/.config/lanes/config.yaml, /etc/lanes/config.yaml, ./config.yaml
func DiscoverConfigPath() (string, error) {
	candidates := []string{}
	if p := os.Getenv("LANES_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "lanes", "config.yaml"))
	}
	candidates = append(candidates, "/etc/lanes/config.yaml", "./config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $LANES_CONFIG, ~/.config/lanes, /etc/lanes, ./config.yaml)")
}

// DiscoverAllConfigFiles returns absolute paths to all configuration files in the include tree.
func DiscoverAllConfigFiles(configPath string) ([]string, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := loadIncludes(&Config{}, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(visited))
	for f := range visited {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// loadIncludes recursively loads and merges files from the include array.
// visited tracks loaded files to prevent cycles.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		includePath = interpolateEnv(includePath)

		resolvedPath := includePath
		if !filepath.IsAbs(includePath) {
			resolvedPath = filepath.Join(baseDir, includePath)
		}

		absPath, err := filepath.Abs(resolvedPath)
		if err != nil {
			return fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
		}

		if visited[absPath] {
			return fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}

		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("include[%d]: file not found: %s\n"+
					"Referenced from: %s\n"+
					"Hint: Check the path is correct and the file exists", i, absPath, baseDir)
			}
			return fmt.Errorf("include[%d]: failed to access file %s: %w", i, absPath, err)
		}

		visited[absPath] = true
		cfg.Files = append(cfg.Files, absPath)

		includedCfg, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}

		if err := deepMergeConfig(cfg, includedCfg); err != nil {
			return fmt.Errorf("include[%d] (%s): merge failed: %w", i, includePath, err)
		}

		if len(includedCfg.Include) > 0 {
			if err := loadIncludes(cfg, includedCfg.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}

	return nil
}

// loadConfigFile loads and parses a single config file without defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// deepMergeConfig merges src into dst, with src taking precedence for non-zero values.
func deepMergeConfig(dst, src *Config) error {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	if src.Service.LogLevel != "" {
		dst.Service.LogLevel = src.Service.LogLevel
	}
	if src.Service.LogFormat != "" {
		dst.Service.LogFormat = src.Service.LogFormat
	}
	if src.Service.ShutdownTimeout != 0 {
		dst.Service.ShutdownTimeout = src.Service.ShutdownTimeout
	}

	if src.State.Path != "" {
		dst.State.Path = src.State.Path
	}

	if src.API.Enabled {
		dst.API.Enabled = src.API.Enabled
	}
	if src.API.Listen != "" {
		dst.API.Listen = src.API.Listen
	}
	if src.API.APIKey != "" {
		dst.API.APIKey = src.API.APIKey
	}

	if src.History.Retention != 0 {
		dst.History.Retention = src.History.Retention
	}
	if src.History.RingSize != 0 {
		dst.History.RingSize = src.History.RingSize
	}

	// Queues are additive; a later file replaces a queue of the same name.
	if src.Queues != nil {
		if dst.Queues == nil {
			dst.Queues = make(map[string]QueueConfig)
		}
		for name, q := range src.Queues {
			dst.Queues[name] = q
		}
	}

	if src.Webhooks != nil {
		if dst.Webhooks == nil {
			dst.Webhooks = &WebhooksConfig{}
		}
		if src.Webhooks.Listen != "" {
			dst.Webhooks.Listen = src.Webhooks.Listen
		}
		dst.Webhooks.Endpoints = append(dst.Webhooks.Endpoints, src.Webhooks.Endpoints...)
	}

	return nil
}

func verifyAllConfigHashes(paths []string) error {
	// Group paths by directory to avoid loading the same checksums file multiple times
	dirToFiles := make(map[string][]string)
	for _, path := range paths {
		dir := filepath.Dir(path)
		dirToFiles[dir] = append(dirToFiles[dir], path)
	}

	for dir, files := range dirToFiles {
		checksums, err := LoadChecksums(dir)
		if err != nil {
			// If .checksums is missing, we skip verification for this directory.
			continue
		}

		for _, path := range files {
			basename := filepath.Base(path)
			expectedHash, ok := checksums.Hashes[basename]
			if !ok {
				return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
					"Run: lanes config lock --config %s", basename, dir, paths[0])
			}

			if err := VerifyFileHash(path, expectedHash); err != nil {
				return fmt.Errorf("config verification failed for %s: %w\n"+
					"If you edited this file intentionally, run: lanes config lock --config %s", path, err, paths[0])
			}
		}
	}

	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.ShutdownTimeout == 0 {
		cfg.Service.ShutdownTimeout = defaults.Service.ShutdownTimeout
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API = defaults.API
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.History.Retention == 0 {
		cfg.History.Retention = defaults.History.Retention
	}
	if cfg.History.RingSize == 0 {
		cfg.History.RingSize = defaults.History.RingSize
	}

	if cfg.Queues == nil {
		cfg.Queues = make(map[string]QueueConfig)
	}

	if cfg.Webhooks != nil && cfg.Webhooks.Listen == "" {
		cfg.Webhooks.Listen = DefaultWebhookListen
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validate reports it where it matters.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.ShutdownTimeout < 0 {
		return fmt.Errorf("service.shutdown_timeout must not be negative")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}
	if cfg.History.RingSize < 0 {
		return fmt.Errorf("history.ring_size must not be negative")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the api is enabled")
		}
		if envVarPattern.MatchString(cfg.API.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey)
			return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
		}
		if cfg.API.APIKey == "" {
			return fmt.Errorf("api.api_key is required when the api is enabled")
		}
	}

	for _, name := range cfg.QueueNames() {
		if err := validateQueue(name, cfg.Queues[name]); err != nil {
			return err
		}
	}

	if cfg.Webhooks != nil {
		if err := validateWebhooks(cfg); err != nil {
			return err
		}
	}

	return nil
}

func validateWebhooks(cfg *Config) error {
	seen := make(map[string]bool)
	for i, ep := range cfg.Webhooks.Endpoints {
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("webhooks.endpoints[%d]: path must start with / (got %q)", i, ep.Path)
		}
		if seen[ep.Path] {
			return fmt.Errorf("webhooks.endpoints[%d]: duplicate path %q", i, ep.Path)
		}
		seen[ep.Path] = true
		if _, ok := cfg.Queues[ep.Queue]; !ok {
			return fmt.Errorf("webhook %s: unknown queue %q", ep.Path, ep.Queue)
		}
		if envVarPattern.MatchString(ep.Secret) {
			matches := envVarPattern.FindStringSubmatch(ep.Secret)
			return fmt.Errorf("webhook %s: secret: environment variable ${%s} is not set", ep.Path, matches[1])
		}
		if ep.Secret == "" {
			return fmt.Errorf("webhook %s: secret is required", ep.Path)
		}
		if ep.RateLimit < 0 || ep.RateBurst < 0 {
			return fmt.Errorf("webhook %s: rate_limit and rate_burst must not be negative", ep.Path)
		}
	}
	return nil
}
