package httpapi

// Config defines HTTP transport settings.
type Config struct {
	Addr     string
	BasePath string
	// BaseURL is the public origin used for the index base href, if any.
	BaseURL string
	// History bounds how many host messages are kept for Last-Event-ID replay.
	History int
	// MaxMessageBytes bounds a POSTed surface message; zero derives it from
	// the upload limit.
	MaxMessageBytes int64
}
