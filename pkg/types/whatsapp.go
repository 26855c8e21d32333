package types

type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionQR           ConnectionStatus = "qr"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
)

// WhatsAppStatus is the payload of the "status" broadcast. QR holds a PNG
// data URL and is only set while Status is "qr".
type WhatsAppStatus struct {
	Status      ConnectionStatus `json:"status"`
	IsConnected bool             `json:"isConnected"`
	QR          *string          `json:"qr"`
}

type Message struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderName     string `json:"sender_name"`
	Body           string `json:"body"`
	Kind           string `json:"kind"`
	FromMe         bool   `json:"from_me"`
	Timestamp      string `json:"timestamp"`
}

type Chat struct {
	ConversationID string `json:"conversation_id"`
	DisplayName    string `json:"display_name"`
	LastBody       string `json:"last_body"`
	LastKind       string `json:"last_kind"`
	LastFromMe     bool   `json:"last_from_me"`
	LastAt         string `json:"last_at"`
	MessageCount   int    `json:"message_count"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type ListChatsResponse struct {
	Chats []Chat `json:"chats"`
}

type ListMessagesResponse struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	NextCursor     *string   `json:"next_cursor,omitempty"`
}
