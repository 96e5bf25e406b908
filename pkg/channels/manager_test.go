package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/config"
)

type fakeChannel struct {
	*BaseChannel
	mu      sync.Mutex
	sent    []bus.OutboundMessage
	failing bool
}

func newFakeChannel(name string, b *bus.MessageBus) *fakeChannel {
	return &fakeChannel{BaseChannel: NewBaseChannel(name, b, nil)}
}

func (f *fakeChannel) Start(ctx context.Context) error {
	if f.failing {
		return context.DeadlineExceeded
	}
	f.setRunning(true)
	return nil
}

func (f *fakeChannel) Stop(ctx context.Context) error {
	f.setRunning(false)
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestManagerRoutesOutboundByChannel(t *testing.T) {
	b := bus.NewMessageBus()
	m := &Manager{channels: make(map[string]Channel), bus: b}
	tg := newFakeChannel("telegram", b)
	dc := newFakeChannel("discord", b)
	m.register(tg)
	m.register(dc)

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	b.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "a"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "discord", ChatID: "2", Content: "b"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "nowhere", ChatID: "3", Content: "c"})

	deadline := time.Now().Add(2 * time.Second)
	for (tg.sentCount() != 1 || dc.sentCount() != 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tg.sentCount() != 1 || dc.sentCount() != 1 {
		t.Errorf("routing wrong: telegram=%d discord=%d", tg.sentCount(), dc.sentCount())
	}

	cancel()
	m.StopAll(context.Background())
	if tg.IsRunning() || dc.IsRunning() {
		t.Error("channels still running after StopAll")
	}
}

func TestManagerStartSkipsFailedChannel(t *testing.T) {
	b := bus.NewMessageBus()
	m := &Manager{channels: make(map[string]Channel), bus: b}
	good := newFakeChannel("good", b)
	bad := newFakeChannel("bad", b)
	bad.failing = true
	m.register(good)
	m.register(bad)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		m.StopAll(context.Background())
	}()
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("one healthy channel should be enough: %v", err)
	}
	if !good.IsRunning() {
		t.Error("healthy channel not started")
	}
}

func TestManagerFailsWhenNothingStarts(t *testing.T) {
	b := bus.NewMessageBus()
	m := &Manager{channels: make(map[string]Channel), bus: b}
	bad := newFakeChannel("bad", b)
	bad.failing = true
	m.register(bad)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartAll(ctx); err == nil {
		t.Error("expected error when every channel fails to start")
	}
}

func TestNewManagerHonorsEnabledFlags(t *testing.T) {
	b := bus.NewMessageBus()

	m, err := NewManager(config.ChannelsConfig{}, b)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("nothing enabled, got %d channels", m.Count())
	}

	m, err = NewManager(config.ChannelsConfig{
		Console: config.ConsoleConfig{Enabled: true},
	}, b)
	if err != nil {
		t.Fatalf("NewManager with console: %v", err)
	}
	if m.Count() != 1 || m.channels["console"] == nil {
		t.Errorf("console channel missing: %v", m.Names())
	}
}

func TestNewManagerRejectsBadWhatsAppConfig(t *testing.T) {
	_, err := NewManager(config.ChannelsConfig{
		WhatsApp: config.WhatsAppConfig{Enabled: true},
	}, bus.NewMessageBus())
	if err == nil {
		t.Error("expected error for whatsapp without bridge_url")
	}
}
