package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/config"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/utils"
)

// telegramAttachmentMaxBytes caps what we bother downloading. Telegram's
// bot API tops out at 20 MB per file anyway.
const telegramAttachmentMaxBytes int64 = 20 * 1024 * 1024

type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus) (*TelegramChannel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", messageBus, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					c.setRunning(false)
					return
				}
				if update.Message != nil {
					c.handleMessage(ctx, update)
				}
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.setRunning(false)
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	if len(msg.Media) > 0 {
		return c.sendMediaFiles(ctx, chatID, msg.Content, msg.Media)
	}

	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// sendMediaFiles delivers local files, picking the Telegram method by
// extension. PDFs go out as documents so they arrive uncompressed.
func (c *TelegramChannel) sendMediaFiles(ctx context.Context, chatID int64, caption string, files []string) error {
	for i, filePath := range files {
		f, err := os.Open(filePath)
		if err != nil {
			logger.ErrorCF("telegram", "Failed to open file for sending", map[string]interface{}{
				"path":  filePath,
				"error": err.Error(),
			})
			continue
		}

		// caption rides on the first file only
		fileCaption := ""
		if i == 0 && caption != "" {
			fileCaption = caption
		}

		ext := strings.ToLower(filepath.Ext(filePath))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".gif", ".webp":
			params := tu.Photo(tu.ID(chatID), tu.File(f))
			params.Caption = fileCaption
			_, err = c.bot.SendPhoto(ctx, params)
		default:
			params := tu.Document(tu.ID(chatID), tu.File(f))
			params.Caption = fileCaption
			_, err = c.bot.SendDocument(ctx, params)
		}
		f.Close()

		if err != nil {
			logger.ErrorCF("telegram", "Failed to send file", map[string]interface{}{
				"path":  filePath,
				"error": err.Error(),
			})
			return fmt.Errorf("failed to send file %s: %w", filepath.Base(filePath), err)
		}

		logger.InfoCF("telegram", "File sent", map[string]interface{}{
			"path": filePath,
		})
	}
	return nil
}

func (c *TelegramChannel) handleMessage(ctx context.Context, update telego.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}
	user := message.From
	userID := fmt.Sprintf("%d", user.ID)

	// Allowlist check happens before any download.
	if !c.IsAllowed(userID) && !c.IsAllowed(user.Username) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"user_id":  userID,
			"username": user.Username,
		})
		return
	}

	chatID := message.Chat.ID

	content := message.Text
	if message.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += message.Caption
	}

	var media []bus.MediaItem

	// Telegram photos arrive as a resolution ladder; the last entry is
	// the largest. Photos are always re-encoded to JPEG server side.
	if len(message.Photo) > 0 {
		photo := message.Photo[len(message.Photo)-1]
		if path := c.downloadFile(ctx, photo.FileID, ".jpg"); path != "" {
			media = append(media, bus.MediaItem{
				Path:         path,
				ContentType:  "image/jpeg",
				OriginalName: fmt.Sprintf("photo_%d.jpg", message.MessageID),
				Size:         int64(photo.FileSize),
			})
		}
	}

	// Documents keep their original bytes and filename. The collector
	// decides whether the payload is an image it can use.
	if message.Document != nil {
		doc := message.Document
		if doc.FileSize > telegramAttachmentMaxBytes {
			logger.WarnCF("telegram", "Document skipped, too large", map[string]interface{}{
				"name": doc.FileName,
				"size": doc.FileSize,
			})
		} else if path := c.downloadFile(ctx, doc.FileID, ""); path != "" {
			name := doc.FileName
			if name == "" {
				name = filepath.Base(path)
			}
			media = append(media, bus.MediaItem{
				Path:         path,
				ContentType:  doc.MimeType,
				OriginalName: utils.SanitizeFilename(name),
				Size:         doc.FileSize,
			})
		}
	}

	if content == "" && len(media) == 0 {
		return
	}

	logger.DebugCF("telegram", "Received message", map[string]interface{}{
		"sender": userID,
		"chat":   chatID,
		"media":  len(media),
	})

	if len(media) > 0 {
		// uploading-a-document reads better than a bare typing cursor
		if err := c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionUploadDocument)); err != nil {
			logger.DebugCF("telegram", "Chat action failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	metadata := map[string]string{
		"message_id": fmt.Sprintf("%d", message.MessageID),
		"username":   user.Username,
		"is_group":   fmt.Sprintf("%t", message.Chat.Type != "private"),
	}
	c.HandleMessage(userID, fmt.Sprintf("%d", chatID), content, media, metadata)
}

// downloadFile pulls one Telegram file into the local spool. Empty on
// any failure; failures are logged, not fatal.
func (c *TelegramChannel) downloadFile(ctx context.Context, fileID, ext string) string {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		logger.ErrorCF("telegram", "Failed to get file", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	if file.FilePath == "" {
		return ""
	}

	// FilePath doubles as the filename; ext covers entries without one.
	filename := file.FilePath
	if filepath.Ext(filename) == "" {
		filename += ext
	}
	return utils.DownloadFile(c.bot.FileDownloadURL(file.FilePath), filename, utils.DownloadOptions{
		LoggerPrefix: "telegram",
	})
}

func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}
