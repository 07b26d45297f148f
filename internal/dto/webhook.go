package dto

import "encoding/json"

// WebhookPayload is the raw Cloud API webhook envelope. Only the fields the
// dispatcher needs are mapped.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries either content messages or delivery-status
// notifications; the two never appear together.
type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Messages         []InboundMessage  `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

// InboundMessage is one raw inbound message.
type InboundMessage struct {
	ID          string              `json:"id"`
	From        string              `json:"from"`
	Type        string              `json:"type"`
	Timestamp   string              `json:"timestamp"`
	Text        *TextPayload        `json:"text,omitempty"`
	Interactive *InteractivePayload `json:"interactive,omitempty"`
	Audio       *MediaPayload       `json:"audio,omitempty"`
	Image       *MediaPayload       `json:"image,omitempty"`
	Video       *MediaPayload       `json:"video,omitempty"`
	Document    *MediaPayload       `json:"document,omitempty"`
	Sticker     *MediaPayload       `json:"sticker,omitempty"`
}

type TextPayload struct {
	Body string `json:"body"`
}

type InteractivePayload struct {
	Type        string        `json:"type"`
	ButtonReply *OptionChoice `json:"button_reply,omitempty"`
	ListReply   *OptionChoice `json:"list_reply,omitempty"`
}

type OptionChoice struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type MediaPayload struct {
	ID       string  `json:"id"`
	MimeType string  `json:"mime_type"`
	Caption  *string `json:"caption,omitempty"`
	Voice    *bool   `json:"voice,omitempty"`
	Animated *bool   `json:"animated,omitempty"`
}

// Message kinds after normalization.
const (
	KindText        = "text"
	KindInteractive = "interactive"
	KindAudio       = "audio"
	KindImage       = "image"
	KindVideo       = "video"
	KindDocument    = "document"
	KindSticker     = "sticker"
)

// Interactive reply types.
const (
	ReplyButton = "button_reply"
	ReplyList   = "list_reply"
)

// ParsedMessage is the canonical form of one inbound message, independent of
// the channel's JSON shape.
type ParsedMessage struct {
	MessageID   string
	From        string
	Kind        string
	Text        string
	Interactive *InteractiveReply
	Media       *MediaDescriptor
}

// InteractiveReply is a normalized button or list reply.
type InteractiveReply struct {
	Type        string
	ID          string
	Title       string
	Description string
}

// MediaDescriptor references channel-hosted media not yet ingested.
type MediaDescriptor struct {
	RemoteID    string
	MimeType    string
	ChannelType string
	Caption     *string
	Voice       *bool
	Animated    *bool
}

// IsButtonReply reports whether the message is a button reply.
func (m *ParsedMessage) IsButtonReply() bool {
	return m.Kind == KindInteractive && m.Interactive != nil && m.Interactive.Type == ReplyButton
}

// IsListReply reports whether the message is a list reply.
func (m *ParsedMessage) IsListReply() bool {
	return m.Kind == KindInteractive && m.Interactive != nil && m.Interactive.Type == ReplyList
}

// HasMedia reports whether the message carries a media attachment.
func (m *ParsedMessage) HasMedia() bool {
	return m.Media != nil
}
