package collector

import (
	"strings"

	"github.com/snapdoc/snapdoc/pkg/bus"
)

// Action is what an inbound message asks the collector to do.
type Action int

const (
	ActionNone Action = iota
	ActionAcceptImages
	ActionGenerate
	ActionClear
	ActionStatus
	ActionStats
	ActionHelp
	ActionUnknownCommand
	ActionHint
)

var actionNames = map[Action]string{
	ActionNone:           "none",
	ActionAcceptImages:   "accept_images",
	ActionGenerate:       "generate",
	ActionClear:          "clear",
	ActionStatus:         "status",
	ActionStats:          "stats",
	ActionHelp:           "help",
	ActionUnknownCommand: "unknown_command",
	ActionHint:           "hint",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "none"
}

// Classify routes a message. Media always wins; commands are matched on
// the first token with any @botname suffix stripped, so Telegram-style
// "/generate@snapdoc_bot" works.
func Classify(msg bus.InboundMessage) Action {
	if len(msg.Media) > 0 {
		return ActionAcceptImages
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return ActionNone
	}
	if !strings.HasPrefix(text, "/") {
		return ActionHint
	}

	cmd := strings.ToLower(strings.Fields(text)[0])
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}

	switch cmd {
	case "/generate", "/done", "/pdf":
		return ActionGenerate
	case "/clear", "/cancel":
		return ActionClear
	case "/status":
		return ActionStatus
	case "/stats":
		return ActionStats
	case "/help", "/start":
		return ActionHelp
	default:
		return ActionUnknownCommand
	}
}
