package channels

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/config"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/utils"
)

// WhatsApp has no first-party bot API, so this channel talks to a local
// bridge process over a websocket. The bridge owns the WhatsApp session;
// we exchange JSON frames with media carried inline as base64.

// bridgeFrame is the wire format in both directions.
type bridgeFrame struct {
	Type        string       `json:"type"`
	Sender      string       `json:"sender,omitempty"`
	Chat        string       `json:"chat,omitempty"`
	Text        string       `json:"text,omitempty"`
	Media       []bridgeBlob `json:"media,omitempty"`
	Attachments []bridgeBlob `json:"attachments,omitempty"`
}

type bridgeBlob struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Data string `json:"data"` // base64
}

const (
	whatsappReconnectMin = 2 * time.Second
	whatsappReconnectMax = 60 * time.Second
)

type WhatsAppChannel struct {
	*BaseChannel
	config config.WhatsAppConfig

	connMu sync.Mutex
	conn   *websocket.Conn
}

func NewWhatsAppChannel(cfg config.WhatsAppConfig, messageBus *bus.MessageBus) (*WhatsAppChannel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url not configured")
	}
	return &WhatsAppChannel{
		BaseChannel: NewBaseChannel("whatsapp", messageBus, cfg.AllowFrom),
		config:      cfg,
	}, nil
}

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	logger.InfoCF("whatsapp", "Starting WhatsApp bridge client", map[string]interface{}{
		"bridge": c.config.BridgeURL,
	})
	go c.run(ctx)
	return nil
}

func (c *WhatsAppChannel) Stop(ctx context.Context) error {
	logger.InfoC("whatsapp", "Stopping WhatsApp bridge client")
	c.setRunning(false)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// run keeps one connection to the bridge alive, backing off on failures.
func (c *WhatsAppChannel) run(ctx context.Context) {
	backoff := whatsappReconnectMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.BridgeURL, nil)
		if err != nil {
			logger.WarnCF("whatsapp", "Bridge connect failed", map[string]interface{}{
				"error":    err.Error(),
				"retry_in": backoff.String(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > whatsappReconnectMax {
				backoff = whatsappReconnectMax
			}
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.setRunning(true)
		backoff = whatsappReconnectMin
		logger.InfoC("whatsapp", "Bridge connected")

		c.readLoop(ctx, conn)

		c.setRunning(false)
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
			logger.InfoC("whatsapp", "Bridge connection lost, reconnecting")
		}
	}
}

func (c *WhatsAppChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame bridgeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil {
				logger.WarnCF("whatsapp", "Bridge read failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}
		if frame.Type != "message" {
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *WhatsAppChannel) handleFrame(frame bridgeFrame) {
	if frame.Sender == "" {
		return
	}
	if !c.IsAllowed(frame.Sender) {
		logger.DebugCF("whatsapp", "Message rejected by allowlist", map[string]interface{}{
			"sender": frame.Sender,
		})
		return
	}

	var media []bus.MediaItem
	for _, blob := range frame.Media {
		data, err := base64.StdEncoding.DecodeString(blob.Data)
		if err != nil {
			logger.WarnCF("whatsapp", "Media blob not decodable", map[string]interface{}{
				"name":  blob.Name,
				"error": err.Error(),
			})
			continue
		}
		name := blob.Name
		if name == "" {
			name = "media"
		}
		path := utils.SpoolBytes(data, name, "whatsapp")
		if path == "" {
			continue
		}
		media = append(media, bus.MediaItem{
			Path:         path,
			ContentType:  blob.Mime,
			OriginalName: utils.SanitizeFilename(name),
			Size:         int64(len(data)),
		})
	}

	if frame.Text == "" && len(media) == 0 {
		return
	}

	chat := frame.Chat
	if chat == "" {
		chat = frame.Sender
	}
	logger.DebugCF("whatsapp", "Received message", map[string]interface{}{
		"sender": frame.Sender,
		"media":  len(media),
	})
	c.HandleMessage(frame.Sender, chat, frame.Text, media, nil)
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	frame := bridgeFrame{
		Type: "send",
		Chat: msg.ChatID,
		Text: msg.Content,
	}
	for _, path := range msg.Media {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.ErrorCF("whatsapp", "Failed to read file for sending", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		frame.Attachments = append(frame.Attachments, bridgeBlob{
			Name: utils.SanitizeFilename(path),
			Mime: mimeForPath(path),
			Data: base64.StdEncoding.EncodeToString(data),
		})
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write to bridge: %w", err)
	}
	return nil
}

func mimeForPath(path string) string {
	if m := utils.DetectImageMimeType(path); m != "" {
		return m
	}
	if strings.ToLower(filepath.Ext(path)) == ".pdf" {
		return "application/pdf"
	}
	return "application/octet-stream"
}
