package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DLDPROMPT_"

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load reads the YAML file at path, applies environment overrides and
// validates the result. An empty path skips the file.
//
// Precedence, highest first:
//  1. DLDPROMPT_<SECTION>_<FIELD> environment variables
//  2. the YAML file
//  3. DefaultConfig
//
// Environment names split on the first underscore after the prefix, so
// DLDPROMPT_PIPELINE_RETRY_BUDGET sets pipeline.retry_budget. A double
// underscore descends one more level: DLDPROMPT_TRANSFORM_CACHE__ENABLED
// sets transform.cache.enabled.
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigFileSize)
		}
		if content, err = io.ReadAll(io.LimitReader(f, maxConfigFileSize+1)); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return LoadBytes(content)
}

// LoadBytes is Load for YAML already in memory.
func LoadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps DLDPROMPT_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + strings.ReplaceAll(field, "__", ".")
}
