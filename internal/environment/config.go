package environment

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/solvd/pkgcore/internal/name"
)

// UserConfig is the user-editable portion of an Environment: accepted
// keywords/licenses, masks/unmasks the user has layered on top of
// repository masks, per-package choice overrides, and where the world set
// lives on disk.
type UserConfig struct {
	AcceptedKeywords []string          `toml:"accepted_keywords"`
	AcceptedLicenses []string          `toml:"accepted_licenses"`
	UserMasks        []string          `toml:"masks"`
	UserUnmasks      []string          `toml:"unmasks"`
	ChoiceOverrides  map[string]string `toml:"choices"`
	WorldFile        string            `toml:"world_file"`
	HookDirectories  []string          `toml:"hook_directories"`
	Mirrors          map[string][]string `toml:"mirrors"`
}

// LoadUserConfig reads and unmarshals a TOML user configuration file,
// applying the same built-in defaults dep's own config loader falls back to
// when a field is absent.
func LoadUserConfig(path string) (UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UserConfig{}, errors.Wrapf(err, "reading user config %q", path)
	}

	var cfg UserConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return UserConfig{}, errors.Wrapf(err, "parsing user config %q", path)
	}
	if cfg.WorldFile == "" {
		cfg.WorldFile = "world"
	}
	return cfg, nil
}

// AcceptsKeyword reports whether kw is in the accepted-keywords list, or the
// wildcard "*" is.
func (c UserConfig) AcceptsKeyword(kw name.KeywordName) bool {
	for _, k := range c.AcceptedKeywords {
		if k == "*" || k == kw.String() {
			return true
		}
	}
	return false
}

// AcceptsLicense reports whether lic is in the accepted-licenses list, or
// the wildcard "*" is.
func (c UserConfig) AcceptsLicense(lic string) bool {
	for _, l := range c.AcceptedLicenses {
		if l == "*" || l == lic {
			return true
		}
	}
	return false
}

// ChoiceOverride returns the user's forced value for a (prefix_name) choice
// key, if one is configured.
func (c UserConfig) ChoiceOverride(key string) (bool, bool) {
	v, ok := c.ChoiceOverrides[key]
	if !ok {
		return false, false
	}
	return v == "true" || v == "on" || v == "enabled", true
}
