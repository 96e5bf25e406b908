// Package channels hosts the chat transports. Each transport turns its
// platform's events into bus.InboundMessage values and delivers outbound
// replies; none of them know what the collector does with a message.
package channels

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/utils"
)

// Channel is one chat transport.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the pieces every transport shares: the bus handle,
// the sender allowlist, and the running flag.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom []string
	running   atomic.Bool
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       messageBus,
		allowFrom: allowFrom,
	}
}

func (b *BaseChannel) Name() string {
	return b.name
}

func (b *BaseChannel) IsRunning() bool {
	return b.running.Load()
}

func (b *BaseChannel) setRunning(v bool) {
	b.running.Store(v)
}

// IsAllowed checks the sender against the allowlist. An empty list means
// the channel is open to everyone.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, allowed := range b.allowFrom {
		if allowed == senderID {
			return true
		}
	}
	return false
}

// HandleMessage publishes one inbound message. The session key is stamped
// here so every transport derives identity the same way.
func (b *BaseChannel) HandleMessage(senderID, chatID, content string, media []bus.MediaItem, metadata map[string]string) {
	msg := bus.InboundMessage{
		Channel:    b.name,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		Media:      media,
		SessionKey: utils.SanitizeUserKey(fmt.Sprintf("%s_%s", b.name, senderID)),
		Metadata:   metadata,
		ReceivedAt: time.Now().UTC(),
	}
	b.bus.PublishInbound(msg)

	logger.DebugCF(b.name, "Inbound message published", map[string]interface{}{
		"sender": senderID,
		"chat":   chatID,
		"media":  len(media),
	})
}
