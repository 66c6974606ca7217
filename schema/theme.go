package schema

import "strings"

const (
	// ThemeLight is the light UI theme.
	ThemeLight ThemeName = "light"
	// ThemeDark is the dark UI theme.
	ThemeDark ThemeName = "dark"
)

// DefaultTheme is the default UI theme name.
const DefaultTheme = ThemeLight

var themeNames = []ThemeName{
	ThemeLight,
	ThemeDark,
}

// AvailableThemes returns the supported theme names.
func AvailableThemes() []ThemeName {
	out := make([]ThemeName, len(themeNames))
	copy(out, themeNames)
	return out
}

// NormalizeThemeName returns a canonical theme name if supported.
// High-contrast variants collapse onto their base theme.
func NormalizeThemeName(name string) (ThemeName, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	switch normalized {
	case "light", "high-contrast-light", "hc-light":
		return ThemeLight, true
	case "dark", "high-contrast", "hc-dark", "high-contrast-dark":
		return ThemeDark, true
	default:
		return "", false
	}
}
