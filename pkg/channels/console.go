package channels

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/utils"
)

// ConsoleChannel is a local REPL for trying the pipeline without any
// chat platform. A line that names an image file on disk is treated as
// an upload; everything else goes through as message text.
type ConsoleChannel struct {
	*BaseChannel
	rl *readline.Instance
}

func NewConsoleChannel(messageBus *bus.MessageBus) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", messageBus, nil),
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.New("snapdoc> ")
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	c.rl = rl
	c.setRunning(true)
	logger.InfoC("console", "Console channel ready; type /help to begin")

	go c.readLoop(ctx)
	return nil
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF || err != nil {
			c.setRunning(false)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.handleLine(line)
	}
}

func (c *ConsoleChannel) handleLine(line string) {
	// A bare path to an image file plays the role of an attachment. The
	// original stays put; the collector consumes a spool copy.
	if utils.IsImageFile(line) {
		data, err := os.ReadFile(line)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "cannot read %s: %v\n", line, err)
			return
		}
		path := utils.SpoolBytes(data, line, "console")
		if path == "" {
			return
		}
		c.HandleMessage("local", "console", "", []bus.MediaItem{{
			Path:         path,
			ContentType:  utils.DetectImageMimeType(line),
			OriginalName: utils.SanitizeFilename(line),
			Size:         int64(len(data)),
		}}, nil)
		return
	}

	c.HandleMessage("local", "console", line, nil, nil)
}

func (c *ConsoleChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.rl == nil {
		return fmt.Errorf("console not started")
	}
	out := c.rl.Stdout()
	fmt.Fprintln(out, msg.Content)
	for _, path := range msg.Media {
		fmt.Fprintf(out, "  -> %s\n", path)
	}
	return nil
}
