package schema

// Kind identifies a protocol message.
type Kind string

// ThemeName identifies a UI theme.
type ThemeName string

// RequestID correlates an asynchronous side-channel request with its result.
type RequestID string

// IntentKind describes what the host should do with surface content.
type IntentKind string

const (
	// IntentPropagate updates the host document without persisting it.
	IntentPropagate IntentKind = "propagate"
	// IntentPersist updates the host document and writes it to disk.
	IntentPersist IntentKind = "persist"
)

// DocumentMeta describes the file behind a snapshot.
type DocumentMeta struct {
	FileName     string `json:"fileName"`
	FilePath     string `json:"filePath"`
	RelativePath string `json:"relativePath"`
}

// Snapshot is one complete copy of the host document.
type Snapshot struct {
	Content string       `json:"content"`
	Meta    DocumentMeta `json:"meta"`
}
