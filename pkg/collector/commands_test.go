package collector

import (
	"testing"

	"github.com/snapdoc/snapdoc/pkg/bus"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		msg  bus.InboundMessage
		want Action
	}{
		{"media wins over text", bus.InboundMessage{Content: "/clear", Media: []bus.MediaItem{{Path: "/tmp/a.jpg"}}}, ActionAcceptImages},
		{"empty", bus.InboundMessage{Content: ""}, ActionNone},
		{"whitespace only", bus.InboundMessage{Content: "   "}, ActionNone},
		{"plain chatter", bus.InboundMessage{Content: "hello there"}, ActionHint},
		{"generate", bus.InboundMessage{Content: "/generate"}, ActionGenerate},
		{"done alias", bus.InboundMessage{Content: "/done"}, ActionGenerate},
		{"pdf alias", bus.InboundMessage{Content: "/pdf"}, ActionGenerate},
		{"generate with bot suffix", bus.InboundMessage{Content: "/generate@snapdoc_bot"}, ActionGenerate},
		{"uppercase command", bus.InboundMessage{Content: "/GENERATE"}, ActionGenerate},
		{"command with trailing text", bus.InboundMessage{Content: "/generate now please"}, ActionGenerate},
		{"clear", bus.InboundMessage{Content: "/clear"}, ActionClear},
		{"cancel alias", bus.InboundMessage{Content: "/cancel"}, ActionClear},
		{"status", bus.InboundMessage{Content: "/status"}, ActionStatus},
		{"stats", bus.InboundMessage{Content: "/stats"}, ActionStats},
		{"help", bus.InboundMessage{Content: "/help"}, ActionHelp},
		{"start alias", bus.InboundMessage{Content: "/start"}, ActionHelp},
		{"unknown command", bus.InboundMessage{Content: "/frobnicate"}, ActionUnknownCommand},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.msg); got != tc.want {
				t.Errorf("Classify(%q) = %d, want %d", tc.msg.Content, got, tc.want)
			}
		})
	}
}

func TestUserKeyIsFilesystemSafe(t *testing.T) {
	msg := bus.InboundMessage{Channel: "telegram", SenderID: "user:42/../etc"}
	key := UserKey(msg)
	if key != "telegram_user_42_.._etc" {
		t.Errorf("UserKey = %q", key)
	}
}
