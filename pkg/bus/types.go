package bus

import "time"

// MediaItem is one attachment a transport has spooled to local disk.
// ContentType is whatever the transport declared; the collector decides
// whether to accept it.
type MediaItem struct {
	Path         string `json:"path"`
	ContentType  string `json:"content_type"`
	OriginalName string `json:"original_name,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// InboundMessage is the typed event a transport hands to the core.
// SessionKey identifies the submitting user across restarts and is the
// key every session and upload directory hangs off.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Media      []MediaItem       `json:"media,omitempty"`
	SessionKey string            `json:"session_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

type OutboundMessage struct {
	Channel string   `json:"channel"`
	ChatID  string   `json:"chat_id"`
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"` // local file paths to send
}
