// Package config loads CLI configuration written in CUE.
//
// A configuration names the update log database and per-document options.
// Files are validated against an embedded schema before decoding, so
// defaults (offset_kind "utf8", skip_gc false) are filled in by CUE.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/ydoc/internal/ydoc"
)

//go:embed schema.cue
var schemaCUE string

// Config is a validated configuration.
type Config struct {
	Database  string                    `json:"database,omitempty"`
	Documents map[string]DocumentConfig `json:"documents"`
}

// DocumentConfig holds the options of one document.
type DocumentConfig struct {
	ClientID   *uint64 `json:"client_id,omitempty"`
	OffsetKind string  `json:"offset_kind"`
	SkipGC     bool    `json:"skip_gc"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse validates src against the schema and decodes it.
// filename is used in error positions only.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile config: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Documents == nil {
		cfg.Documents = map[string]DocumentConfig{}
	}
	return &cfg, nil
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{Documents: map[string]DocumentConfig{}}
}

// DocumentOptions returns the document options configured for name.
// Unknown documents get the defaults.
func (c *Config) DocumentOptions(name string) []ydoc.Option {
	dc, ok := c.Documents[name]
	if !ok {
		return nil
	}
	opts := []ydoc.Option{ydoc.WithSkipGC(dc.SkipGC)}
	if dc.OffsetKind != "" {
		opts = append(opts, ydoc.WithOffsetKindName(dc.OffsetKind))
	}
	if dc.ClientID != nil {
		opts = append(opts, ydoc.WithClientID(*dc.ClientID))
	}
	return opts
}
