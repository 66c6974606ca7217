package schema

// Editor option defaults.
const (
	DefaultEditorMaxWidth      = 780
	DefaultUseVscodeThemeColor = true
)

// EditorOptions are host-resolved presentation settings passed through to the surface.
type EditorOptions struct {
	EditorMaxWidth      int  `json:"editorMaxWidth"`
	UseVscodeThemeColor bool `json:"useVscodeThemeColor"`
}

// DefaultEditorOptions returns the editor options with defaults applied.
func DefaultEditorOptions() EditorOptions {
	return EditorOptions{
		EditorMaxWidth:      DefaultEditorMaxWidth,
		UseVscodeThemeColor: DefaultUseVscodeThemeColor,
	}
}

// NormalizeEditorOptions fills in missing values.
func NormalizeEditorOptions(opts EditorOptions) EditorOptions {
	if opts.EditorMaxWidth <= 0 {
		opts.EditorMaxWidth = DefaultEditorMaxWidth
	}
	return opts
}

// DefaultUploadMaxBytes is the largest accepted upload payload (10 MiB).
const DefaultUploadMaxBytes = 10 * 1024 * 1024

// DefaultUploadTimeoutSeconds bounds a full upload round-trip.
const DefaultUploadTimeoutSeconds = 30

// DefaultAssetsDir is the asset directory created next to the document.
const DefaultAssetsDir = "assets"
