package httpapi

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"io/fs"
	"strings"
	"time"
)

//go:embed assets/*
var embeddedAssets embed.FS

var assetsFS fs.FS

func init() {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = embeddedAssets
		return
	}
	assetsFS = sub
}

const baseHrefPlaceholder = "<!-- BASE_HREF -->"

// indexPage returns the surface page with its base href filled in.
func indexPage(baseHref string) ([]byte, time.Time, error) {
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		return nil, time.Time{}, err
	}
	var modTime time.Time
	if stat, err := fs.Stat(assetsFS, "index.html"); err == nil {
		modTime = stat.ModTime()
	}
	return applyBaseHref(data, baseHref), modTime, nil
}

func applyBaseHref(data []byte, baseHref string) []byte {
	replacement := ""
	if strings.TrimSpace(baseHref) != "" {
		replacement = fmt.Sprintf(`<base href="%s" />`, html.EscapeString(baseHref))
	}
	return bytes.ReplaceAll(data, []byte(baseHrefPlaceholder), []byte(replacement))
}
