package channels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/config"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/utils"
)

type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig
}

func NewDiscordChannel(cfg config.DiscordConfig, messageBus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", messageBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot...")

	c.session.AddHandler(c.onMessageCreate)
	c.session.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}

	c.setRunning(true)
	username := ""
	if c.session.State != nil && c.session.State.User != nil {
		username = c.session.State.User.Username
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]interface{}{
		"user": username,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot...")
	c.setRunning(false)
	return c.session.Close()
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	if len(msg.Media) == 0 {
		_, err := c.session.ChannelMessageSend(msg.ChatID, msg.Content)
		return err
	}

	send := &discordgo.MessageSend{Content: msg.Content}
	var open []*os.File
	defer func() {
		for _, f := range open {
			f.Close()
		}
	}()
	for _, path := range msg.Media {
		f, err := os.Open(path)
		if err != nil {
			logger.ErrorCF("discord", "Failed to open file for sending", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		open = append(open, f)
		send.Files = append(send.Files, &discordgo.File{
			Name:   filepath.Base(path),
			Reader: f,
		})
	}
	if len(send.Files) == 0 && send.Content == "" {
		return fmt.Errorf("nothing to send")
	}

	_, err := c.session.ChannelMessageSendComplex(msg.ChatID, send)
	return err
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !c.IsAllowed(m.Author.ID) && !c.IsAllowed(m.Author.Username) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]interface{}{
			"user_id":  m.Author.ID,
			"username": m.Author.Username,
		})
		return
	}

	var media []bus.MediaItem
	for _, att := range m.Attachments {
		// images only; anything else would bounce off the collector anyway
		if !strings.HasPrefix(att.ContentType, "image/") && !utils.IsImageFile(att.Filename) {
			logger.DebugCF("discord", "Attachment skipped, not an image", map[string]interface{}{
				"name": att.Filename,
				"type": att.ContentType,
			})
			continue
		}
		path := utils.DownloadFile(att.URL, att.Filename, utils.DownloadOptions{
			LoggerPrefix: "discord",
		})
		if path == "" {
			continue
		}
		media = append(media, bus.MediaItem{
			Path:         path,
			ContentType:  att.ContentType,
			OriginalName: utils.SanitizeFilename(att.Filename),
			Size:         int64(att.Size),
		})
	}

	if m.Content == "" && len(media) == 0 {
		return
	}

	logger.DebugCF("discord", "Received message", map[string]interface{}{
		"sender": m.Author.ID,
		"chat":   m.ChannelID,
		"media":  len(media),
	})

	metadata := map[string]string{
		"message_id": m.ID,
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
	}
	c.HandleMessage(m.Author.ID, m.ChannelID, m.Content, media, metadata)
}
