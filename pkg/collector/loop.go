package collector

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/utils"
)

// Loop pumps inbound chat messages through the decision table. Each
// message is handled on its own goroutine; the collector's per-user lock
// keeps one user's state changes serialized.
type Loop struct {
	collector *Collector
	bus       *bus.MessageBus
	running   atomic.Bool
}

func NewLoop(c *Collector, b *bus.MessageBus) *Loop {
	return &Loop{collector: c, bus: b}
}

// UserKey is the session identity for a message: the transport's stamped
// session key when present, otherwise channel plus sender sanitized into
// something safe as a directory name.
func UserKey(msg bus.InboundMessage) string {
	if msg.SessionKey != "" {
		return msg.SessionKey
	}
	return utils.SanitizeUserKey(fmt.Sprintf("%s_%s", msg.Channel, msg.SenderID))
}

func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
			msg, ok := l.bus.ConsumeInbound(ctx)
			if !ok {
				continue
			}
			go l.handle(ctx, msg)
		}
	}
	return nil
}

func (l *Loop) Stop() {
	l.running.Store(false)
}

func (l *Loop) handle(ctx context.Context, msg bus.InboundMessage) {
	send := func(content string, media ...string) {
		l.bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: content,
			Media:   media,
		})
	}

	userKey := UserKey(msg)
	action := Classify(msg)
	logger.DebugCF("collector", "Message routed", map[string]interface{}{
		"user":    userKey,
		"action":  action.String(),
		"media":   len(msg.Media),
		"content": utils.Truncate(msg.Content, 80),
	})

	switch action {
	case ActionAcceptImages:
		for _, item := range msg.Media {
			count, _, err := l.collector.AcceptImage(userKey, msg.Channel, msg.ChatID, MediaInput{
				Path:         item.Path,
				ContentType:  item.ContentType,
				OriginalName: item.OriginalName,
			})
			if err != nil {
				send(l.collector.MessageFor(err))
				continue
			}
			send(l.collector.AckMessage(count))
		}

	case ActionGenerate:
		if err := l.collector.CanTrigger(userKey); err != nil {
			send(l.collector.MessageFor(err))
			return
		}
		send(WorkingMessage())
		resp, err := l.collector.Trigger(ctx, userKey)
		if err != nil {
			send(l.collector.MessageFor(err))
			return
		}
		media := []string{resp.PDFPath}
		if resp.PreviewPath != "" {
			media = append(media, resp.PreviewPath)
		}
		send(DeliveryMessage(resp), media...)

	case ActionClear:
		if err := l.collector.Clear(userKey); err != nil {
			send(l.collector.MessageFor(err))
			return
		}
		send(ClearedText())

	case ActionStatus:
		sess, found := l.collector.Status(userKey)
		send(l.collector.StatusMessage(sess, found))

	case ActionStats:
		send(StatsMessage(l.collector.Stats(userKey)))

	case ActionHelp:
		send(l.collector.HelpText())

	case ActionUnknownCommand:
		send(UnknownCommandText())

	case ActionHint:
		send(HintText())
	}
}
