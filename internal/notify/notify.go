// Package notify delivers fire-and-forget operator notifications.
package notify

import (
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Warning Kind = "warning"
)

type Sink interface {
	Notify(kind Kind, message string)
}

type LogSink struct{}

func (LogSink) Notify(kind Kind, message string) {
	log.Printf("[notify] %s: %s", strings.ToUpper(string(kind)), message)
}

type Multi []Sink

func (m Multi) Notify(kind Kind, message string) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(kind, message)
		}
	}
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type telegramMessage struct {
	kind Kind
	text string
}

// TelegramSink forwards notifications to one chat. Messages are queued and
// sent by a single goroutine; when the queue is full they are dropped.
type TelegramSink struct {
	bot    sender
	chatID int64
	queue  chan telegramMessage
	done   chan struct{}
	once   sync.Once
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramSink(bot, chatID, 64), nil
}

func newTelegramSink(bot sender, chatID int64, size int) *TelegramSink {
	s := &TelegramSink{
		bot:    bot,
		chatID: chatID,
		queue:  make(chan telegramMessage, size),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *TelegramSink) Notify(kind Kind, message string) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- telegramMessage{kind: kind, text: message}:
	default:
		log.Printf("[notify] WARN: telegram queue full, dropping %s message", kind)
	}
}

func (s *TelegramSink) run() {
	for {
		select {
		case msg := <-s.queue:
			s.send(msg)
		case <-s.done:
			for {
				select {
				case msg := <-s.queue:
					s.send(msg)
				default:
					return
				}
			}
		}
	}
}

func (s *TelegramSink) send(msg telegramMessage) {
	out := tgbotapi.NewMessage(s.chatID, prefix(msg.kind)+msg.text)
	if _, err := s.bot.Send(out); err != nil {
		log.Printf("[notify] WARN: telegram send failed: %v", err)
	}
}

// Close stops accepting messages and lets the worker drain what is queued.
func (s *TelegramSink) Close() {
	s.once.Do(func() { close(s.done) })
}

func prefix(kind Kind) string {
	switch kind {
	case Success:
		return "✅ "
	case Error:
		return "❌ "
	case Warning:
		return "⚠️ "
	default:
		return ""
	}
}
