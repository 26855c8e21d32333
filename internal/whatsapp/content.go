package whatsapp

import (
	"strings"
	"unicode"
)

// Content is the payload of an inbound message.
type Content interface {
	content()
}

type Text struct {
	Body string
}

// ExtendedText is text with link previews, quotes or mentions attached.
type ExtendedText struct {
	Body string
}

type Image struct {
	Caption string
}

type Audio struct{}

type Document struct {
	FileName string
}

// Unknown is any payload kind without a dedicated mapping, e.g. stickers
// or reactions. Kind is the transport's tag for it.
type Unknown struct {
	Kind string
}

func (Text) content()         {}
func (ExtendedText) content() {}
func (Image) content()        {}
func (Audio) content()        {}
func (Document) content()     {}
func (Unknown) content()      {}

const (
	KindText     = "text"
	KindImage    = "image"
	KindAudio    = "audio"
	KindDocument = "document"
	KindUnknown  = "unknown"
)

// ExtractBody returns the display body and kind tag for a payload.
func ExtractBody(c Content) (body, kind string) {
	switch v := c.(type) {
	case Text:
		return v.Body, KindText
	case ExtendedText:
		return v.Body, KindText
	case Image:
		if v.Caption != "" {
			return v.Caption, KindImage
		}
		return "[image]", KindImage
	case Audio:
		return "[audio]", KindAudio
	case Document:
		name := v.FileName
		if name == "" {
			name = "file"
		}
		return "[document: " + name + "]", KindDocument
	case Unknown:
		kind := v.Kind
		if kind == "" {
			kind = KindUnknown
		}
		return "[" + kind + "]", kind
	default:
		return "[" + KindUnknown + "]", KindUnknown
	}
}

// PhoneFromConversation returns the digits of the user part of a
// conversation id, "5511988887777@s.whatsapp.net" -> "5511988887777".
func PhoneFromConversation(conversationID string) string {
	user := conversationID
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	// multi-device ids carry a ":device" suffix
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, user)
}

// DisplayName prefers the sender's push name and falls back to the numeric id.
func DisplayName(pushName, conversationID string) string {
	if name := strings.TrimSpace(pushName); name != "" {
		return name
	}
	return PhoneFromConversation(conversationID)
}

// IsDirectChat reports whether the conversation is a one-to-one chat.
// Groups, status updates, broadcast lists and channels are not.
func IsDirectChat(conversationID string) bool {
	switch {
	case conversationID == "status@broadcast":
		return false
	case strings.HasSuffix(conversationID, "@g.us"),
		strings.HasSuffix(conversationID, "@broadcast"),
		strings.HasSuffix(conversationID, "@newsletter"):
		return false
	}
	return PhoneFromConversation(conversationID) != ""
}

// NormalizeConversationID turns a bare phone number into a user jid and
// leaves anything that already has a server part alone.
func NormalizeConversationID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "@") {
		return id
	}
	return PhoneFromConversation(id) + "@s.whatsapp.net"
}
