package transport

import (
	"encoding/json"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/georgeshao/clinic-crm/internal/whatsapp"
)

type pairedDevice struct {
	JID          string `json:"jid"`
	BusinessName string `json:"business_name,omitempty"`
	Platform     string `json:"platform,omitempty"`
}

// translate maps a whatsmeow event onto the service's event union. Events
// the CRM has no use for report false.
func translate(evt any) (whatsapp.Event, bool) {
	switch e := evt.(type) {
	case *events.Connected:
		return whatsapp.OpenEvent{}, true

	case *events.Disconnected:
		return whatsapp.CloseEvent{Reason: "disconnected"}, true

	case *events.StreamReplaced:
		return whatsapp.CloseEvent{Reason: "stream replaced by another client"}, true

	case *events.LoggedOut:
		return whatsapp.CloseEvent{
			Reason:     e.Reason.String(),
			StatusCode: int(e.Reason),
			LoggedOut:  true,
		}, true

	case *events.PairSuccess:
		data, err := json.Marshal(pairedDevice{
			JID:          e.ID.String(),
			BusinessName: e.BusinessName,
			Platform:     e.Platform,
		})
		if err != nil {
			return nil, false
		}
		return whatsapp.CredentialsEvent{Data: data}, true

	case *events.Message:
		return whatsapp.MessagesEvent{Messages: []whatsapp.InboundMessage{{
			ConversationID: e.Info.Chat.String(),
			MessageID:      e.Info.ID,
			PushName:       e.Info.PushName,
			FromMe:         e.Info.IsFromMe,
			Timestamp:      e.Info.Timestamp,
			Content:        content(e.Message),
		}}}, true
	}

	return nil, false
}

func content(msg *waE2E.Message) whatsapp.Content {
	switch {
	case msg == nil:
		return whatsapp.Unknown{Kind: "empty"}
	case msg.GetConversation() != "":
		return whatsapp.Text{Body: msg.GetConversation()}
	case msg.GetExtendedTextMessage() != nil:
		return whatsapp.ExtendedText{Body: msg.GetExtendedTextMessage().GetText()}
	case msg.GetImageMessage() != nil:
		return whatsapp.Image{Caption: msg.GetImageMessage().GetCaption()}
	case msg.GetAudioMessage() != nil:
		return whatsapp.Audio{}
	case msg.GetDocumentMessage() != nil:
		return whatsapp.Document{FileName: msg.GetDocumentMessage().GetFileName()}
	case msg.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage() != nil:
		return whatsapp.Document{FileName: msg.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage().GetFileName()}
	case msg.GetVideoMessage() != nil:
		return whatsapp.Unknown{Kind: "video"}
	case msg.GetStickerMessage() != nil:
		return whatsapp.Unknown{Kind: "sticker"}
	case msg.GetReactionMessage() != nil:
		return whatsapp.Unknown{Kind: "reaction"}
	case msg.GetLocationMessage() != nil:
		return whatsapp.Unknown{Kind: "location"}
	case msg.GetContactMessage() != nil:
		return whatsapp.Unknown{Kind: "contact"}
	}
	return whatsapp.Unknown{Kind: firstField(msg)}
}

// firstField names the first populated payload field of a message, e.g.
// "pollCreationMessage" -> "pollCreation".
func firstField(msg *waE2E.Message) string {
	var kind string
	msg.ProtoReflect().Range(func(fd protoreflect.FieldDescriptor, _ protoreflect.Value) bool {
		switch fd.Name() {
		case "messageContextInfo", "senderKeyDistributionMessage":
			return true
		}
		kind = strings.TrimSuffix(string(fd.Name()), "Message")
		return false
	})
	if kind == "" {
		return "unknown"
	}
	return kind
}
