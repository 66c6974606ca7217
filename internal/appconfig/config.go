package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/mdsurface/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	WorkspaceRoot string        `mapstructure:"workspace_root" yaml:"workspace_root"`
	Editor        EditorConfig  `mapstructure:"editor" yaml:"editor"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	Upload        UploadConfig  `mapstructure:"upload" yaml:"upload"`
	Watch         WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EditorConfig controls what the surface is told about presentation.
type EditorConfig struct {
	MaxWidth            int    `mapstructure:"max_width" yaml:"max_width"`
	UseVscodeThemeColor bool   `mapstructure:"use_vscode_theme_color" yaml:"use_vscode_theme_color"`
	Theme               string `mapstructure:"theme" yaml:"theme"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
	// History bounds how many host messages the stream replays on reconnect.
	History int `mapstructure:"history" yaml:"history"`
}

// UploadConfig controls asset uploads.
type UploadConfig struct {
	MaxBytes       int64  `mapstructure:"max_bytes" yaml:"max_bytes"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	AssetsDir      string `mapstructure:"assets_dir" yaml:"assets_dir"`
}

// WatchConfig controls external change detection.
type WatchConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	DebounceMS int  `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// EditorOptions converts the editor section into protocol options.
func (c Config) EditorOptions() schema.EditorOptions {
	return schema.NormalizeEditorOptions(schema.EditorOptions{
		EditorMaxWidth:      c.Editor.MaxWidth,
		UseVscodeThemeColor: c.Editor.UseVscodeThemeColor,
	})
}

// Theme returns the configured theme, falling back to the default.
func (c Config) Theme() schema.ThemeName {
	if theme, ok := schema.NormalizeThemeName(c.Editor.Theme); ok {
		return theme
	}
	return schema.DefaultTheme
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		WorkspaceRoot: "",
		Editor: EditorConfig{
			MaxWidth:            schema.DefaultEditorMaxWidth,
			UseVscodeThemeColor: schema.DefaultUseVscodeThemeColor,
			Theme:               string(schema.DefaultTheme),
		},
		HTTP: HTTPConfig{
			Addr:     "127.0.0.1:27490",
			BasePath: "",
			History:  256,
		},
		Upload: UploadConfig{
			MaxBytes:       schema.DefaultUploadMaxBytes,
			TimeoutSeconds: schema.DefaultUploadTimeoutSeconds,
			AssetsDir:      schema.DefaultAssetsDir,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMS: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mdsurface", "config.yaml"), nil
}
