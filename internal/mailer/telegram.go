package mailer

import (
	"fmt"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Notifier pings staff about work waiting for them.
type Notifier interface {
	Notify(text string)
}

// TelegramNotifier handles sending notifications to multiple chats
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

func NewTelegramNotifier(botToken string, chatIDs []int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}

	return &TelegramNotifier{
		bot:     bot,
		chatIDs: chatIDs,
	}, nil
}

// Notify sends text to every configured chat
func (tn *TelegramNotifier) Notify(text string) {
	if tn == nil || tn.bot == nil {
		return
	}

	for _, chatID := range tn.chatIDs {
		go func(cid int64) {
			msg := tgbotapi.NewMessage(cid, text)
			msg.ParseMode = tgbotapi.ModeMarkdown
			if _, err := tn.bot.Send(msg); err != nil {
				log.Errorf("Failed to send telegram message to chat %d: %v", cid, err)
			}
		}(chatID)
	}
}

// ChatIDsFromEnv reads TELEGRAM_CHAT_ID_1..3, skipping unset or bad ones.
func ChatIDsFromEnv() []int64 {
	var chatIDs []int64
	for i := 1; i <= 3; i++ {
		chatIDStr := os.Getenv(fmt.Sprintf("TELEGRAM_CHAT_ID_%d", i))
		if chatIDStr == "" {
			continue
		}
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			log.Errorf("Invalid TELEGRAM_CHAT_ID_%d format: %v", i, err)
			continue
		}
		chatIDs = append(chatIDs, chatID)
	}
	return chatIDs
}

// TelegramFromEnv returns nil when the bot is not configured.
func TelegramFromEnv() *TelegramNotifier {
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		log.Warn("TELEGRAM_BOT_TOKEN not set, notifications disabled")
		return nil
	}

	chatIDs := ChatIDsFromEnv()
	if len(chatIDs) == 0 {
		log.Warn("No valid telegram chat IDs found, notifications disabled")
		return nil
	}

	notifier, err := NewTelegramNotifier(botToken, chatIDs)
	if err != nil {
		log.Errorf("Failed to initialize Telegram notifier: %v", err)
		return nil
	}

	log.Infof("Telegram notifier initialized with %d chat IDs", len(chatIDs))
	return notifier
}
