package notify

import (
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestTelegramSinkDeliversQueuedMessages(t *testing.T) {
	bot := &fakeBot{}
	sink := newTelegramSink(bot, 42, 8)

	sink.Notify(Success, "satış kaydedildi")
	sink.Notify(Warning, "stok kritik")

	deadline := time.Now().Add(2 * time.Second)
	for bot.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sink.Close()

	if bot.count() != 2 {
		t.Fatalf("expected 2 messages, got %d", bot.count())
	}
	if bot.sent[0] != "✅ satış kaydedildi" {
		t.Fatalf("unexpected first message %q", bot.sent[0])
	}
}

type recordingSink struct {
	kinds []Kind
}

func (r *recordingSink) Notify(kind Kind, _ string) {
	r.kinds = append(r.kinds, kind)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	Multi{a, nil, b}.Notify(Error, "boom")
	if len(a.kinds) != 1 || len(b.kinds) != 1 || a.kinds[0] != Error {
		t.Fatalf("expected both sinks to receive the error, got %v %v", a.kinds, b.kinds)
	}
}
