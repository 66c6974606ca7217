package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Host to surface kinds.
const (
	KindInit         Kind = "init"
	KindUpdate       Kind = "update"
	KindTheme        Kind = "theme"
	KindUploadResult Kind = "upload-result"
)

// Surface to host kinds.
const (
	KindReady    Kind = "ready"
	KindEdit     Kind = "edit"
	KindSave     Kind = "save"
	KindOpenLink Kind = "open-link"
	KindUpload   Kind = "upload"
)

// Message is one protocol message in either direction. Only the fields relevant
// to Kind are serialized.
type Message struct {
	Kind       Kind
	Content    string
	Meta       DocumentMeta
	Options    EditorOptions
	Theme      ThemeName
	RequestID  RequestID
	OK         bool
	URL        string
	Error      string
	Href       string
	FileName   string
	MimeType   string
	DataBase64 string
}

// IsHostKind reports whether kind flows host to surface.
func IsHostKind(kind Kind) bool {
	switch kind {
	case KindInit, KindUpdate, KindTheme, KindUploadResult:
		return true
	}
	return false
}

// IsSurfaceKind reports whether kind flows surface to host.
func IsSurfaceKind(kind Kind) bool {
	switch kind {
	case KindReady, KindEdit, KindSave, KindOpenLink, KindUpload:
		return true
	}
	return false
}

// Snapshot returns the document snapshot carried by init/update messages.
func (m Message) Snapshot() Snapshot {
	return Snapshot{Content: m.Content, Meta: m.Meta}
}

// Intent returns the intent kind for edit/save messages.
func (m Message) Intent() IntentKind {
	if m.Kind == KindSave {
		return IntentPersist
	}
	return IntentPropagate
}

// InitMessage builds the first snapshot push after ready.
func InitMessage(snapshot Snapshot, opts EditorOptions, theme ThemeName) Message {
	return Message{Kind: KindInit, Content: snapshot.Content, Meta: snapshot.Meta, Options: opts, Theme: theme}
}

// UpdateMessage builds a snapshot push for an external document change.
func UpdateMessage(snapshot Snapshot, opts EditorOptions, theme ThemeName) Message {
	return Message{Kind: KindUpdate, Content: snapshot.Content, Meta: snapshot.Meta, Options: opts, Theme: theme}
}

// ThemeMessage builds a theme-only change.
func ThemeMessage(theme ThemeName) Message {
	return Message{Kind: KindTheme, Theme: theme}
}

// UploadResultOK builds a successful upload answer.
func UploadResultOK(id RequestID, url string) Message {
	return Message{Kind: KindUploadResult, RequestID: id, OK: true, URL: url}
}

// UploadResultError builds a failed upload answer.
func UploadResultError(id RequestID, message string) Message {
	return Message{Kind: KindUploadResult, RequestID: id, OK: false, Error: message}
}

// ReadyMessage signals the surface finished booting.
func ReadyMessage() Message {
	return Message{Kind: KindReady}
}

// EditMessage builds a propagate-only intent.
func EditMessage(content string) Message {
	return Message{Kind: KindEdit, Content: content}
}

// SaveMessage builds a propagate-and-persist intent.
func SaveMessage(content string) Message {
	return Message{Kind: KindSave, Content: content}
}

// OpenLinkMessage asks the host to open href.
func OpenLinkMessage(href string) Message {
	return Message{Kind: KindOpenLink, Href: href}
}

// UploadMessage asks the host to materialize an asset.
func UploadMessage(id RequestID, fileName, mimeType, dataBase64 string) Message {
	return Message{Kind: KindUpload, RequestID: id, FileName: fileName, MimeType: mimeType, DataBase64: dataBase64}
}

type wireMessage struct {
	Kind       Kind           `json:"kind"`
	Content    *string        `json:"content,omitempty"`
	Meta       *DocumentMeta  `json:"meta,omitempty"`
	Options    *EditorOptions `json:"options,omitempty"`
	Theme      ThemeName      `json:"theme,omitempty"`
	RequestID  RequestID      `json:"requestId,omitempty"`
	OK         *bool          `json:"ok,omitempty"`
	URL        string         `json:"url,omitempty"`
	Error      string         `json:"error,omitempty"`
	Href       *string        `json:"href,omitempty"`
	FileName   string         `json:"fileName,omitempty"`
	MimeType   string         `json:"mimeType,omitempty"`
	DataBase64 *string        `json:"dataBase64,omitempty"`
}

// MarshalJSON encodes only the fields that belong to the message kind.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Kind: m.Kind}
	switch m.Kind {
	case KindInit, KindUpdate:
		content := m.Content
		meta := m.Meta
		opts := m.Options
		w.Content = &content
		w.Meta = &meta
		w.Options = &opts
		w.Theme = m.Theme
	case KindTheme:
		w.Theme = m.Theme
	case KindUploadResult:
		ok := m.OK
		w.RequestID = m.RequestID
		w.OK = &ok
		w.URL = m.URL
		w.Error = m.Error
	case KindEdit, KindSave:
		content := m.Content
		w.Content = &content
	case KindOpenLink:
		href := m.Href
		w.Href = &href
	case KindUpload:
		data := m.DataBase64
		w.RequestID = m.RequestID
		w.FileName = m.FileName
		w.MimeType = m.MimeType
		w.DataBase64 = &data
	}
	return json.Marshal(w)
}

// DecodeHostMessage decodes and validates a host to surface message.
func DecodeHostMessage(data []byte) (Message, error) {
	msg, err := decodeMessage(data)
	if err != nil {
		return Message{}, err
	}
	if !IsHostKind(msg.Kind) {
		return Message{}, fmt.Errorf("%w: unexpected kind %q", ErrMalformedMessage, msg.Kind)
	}
	return msg, nil
}

// DecodeSurfaceMessage decodes and validates a surface to host message.
func DecodeSurfaceMessage(data []byte) (Message, error) {
	msg, err := decodeMessage(data)
	if err != nil {
		return Message{}, err
	}
	if !IsSurfaceKind(msg.Kind) {
		return Message{}, fmt.Errorf("%w: unexpected kind %q", ErrMalformedMessage, msg.Kind)
	}
	return msg, nil
}

// Validate checks that msg has a known kind and its required fields.
// Decoded messages are always valid; this is for messages built in-process.
func Validate(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	_, err = decodeMessage(data)
	return err
}

func decodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	msg := Message{
		Kind:      w.Kind,
		Theme:     w.Theme,
		RequestID: RequestID(strings.TrimSpace(string(w.RequestID))),
		URL:       w.URL,
		Error:     w.Error,
		FileName:  w.FileName,
		MimeType:  w.MimeType,
	}
	switch w.Kind {
	case KindInit, KindUpdate:
		if w.Content == nil {
			return Message{}, missingField(w.Kind, "content")
		}
		msg.Content = *w.Content
		if w.Meta != nil {
			msg.Meta = *w.Meta
		}
		msg.Options = DefaultEditorOptions()
		if w.Options != nil {
			msg.Options = NormalizeEditorOptions(*w.Options)
		}
		// An unknown theme drops the theme, not the snapshot.
		msg.Theme, _ = NormalizeThemeName(string(w.Theme))
	case KindTheme:
		theme, ok := NormalizeThemeName(string(w.Theme))
		if !ok {
			return Message{}, fmt.Errorf("%w: theme has unknown theme %q", ErrMalformedMessage, w.Theme)
		}
		msg.Theme = theme
	case KindUploadResult:
		if msg.RequestID == "" {
			return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, ErrMissingRequestID)
		}
		if w.OK == nil {
			return Message{}, missingField(w.Kind, "ok")
		}
		msg.OK = *w.OK
	case KindReady:
	case KindEdit, KindSave:
		if w.Content == nil {
			return Message{}, missingField(w.Kind, "content")
		}
		msg.Content = *w.Content
	case KindOpenLink:
		if w.Href == nil || strings.TrimSpace(*w.Href) == "" {
			return Message{}, missingField(w.Kind, "href")
		}
		msg.Href = strings.TrimSpace(*w.Href)
	case KindUpload:
		if msg.RequestID == "" {
			return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, ErrMissingRequestID)
		}
		if w.DataBase64 != nil {
			msg.DataBase64 = *w.DataBase64
		}
	case "":
		return Message{}, fmt.Errorf("%w: missing kind", ErrMalformedMessage)
	default:
		return Message{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, w.Kind)
	}
	return msg, nil
}

func missingField(kind Kind, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMalformedMessage, kind, field)
}
