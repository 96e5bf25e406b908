package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/config"
	"github.com/snapdoc/snapdoc/pkg/logger"
)

// Manager owns every enabled transport: it starts and stops them together
// and routes outbound messages to whichever channel they name.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	wg       sync.WaitGroup
}

func NewManager(cfg config.ChannelsConfig, messageBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      messageBus,
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, messageBus)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		m.channels[ch.Name()] = ch
	}
	if cfg.Discord.Enabled {
		ch, err := NewDiscordChannel(cfg.Discord, messageBus)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		m.channels[ch.Name()] = ch
	}
	if cfg.WhatsApp.Enabled {
		ch, err := NewWhatsAppChannel(cfg.WhatsApp, messageBus)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: %w", err)
		}
		m.channels[ch.Name()] = ch
	}
	if cfg.Console.Enabled {
		m.register(NewConsoleChannel(messageBus))
	}

	return m, nil
}

func (m *Manager) register(ch Channel) {
	m.channels[ch.Name()] = ch
}

// Names lists the configured channels.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

func (m *Manager) Count() int {
	return len(m.channels)
}

// StartAll brings up every channel and begins dispatching outbound
// messages. A channel that fails to start is logged and skipped; the
// rest keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	started := 0
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Channel failed to start", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			continue
		}
		started++
		logger.InfoCF("channels", "Channel started", map[string]interface{}{"channel": name})
	}
	if started == 0 && len(m.channels) > 0 {
		return fmt.Errorf("no channel could be started")
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatchOutbound(ctx)
	}()
	return nil
}

// dispatchOutbound pumps replies from the bus to their home transport.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		ch, found := m.channels[msg.Channel]
		if !found {
			logger.WarnCF("channels", "Outbound message for unknown channel", map[string]interface{}{
				"channel": msg.Channel,
			})
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Outbound send failed", map[string]interface{}{
				"channel": msg.Channel,
				"chat":    msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}

// StopAll shuts the transports down and waits for the dispatcher to
// return. Cancel the StartAll context first or the wait never ends.
func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Channel stop failed", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	m.wg.Wait()
}
