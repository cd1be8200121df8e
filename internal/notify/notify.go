package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/robopilot/robopilot/internal/config"
	"github.com/robopilot/robopilot/internal/logger"
)

// Notifier pushes robot lifecycle updates and watchdog alerts to the
// operator's Telegram chat. A disabled notifier swallows everything.
type Notifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
	logger  *logger.Logger
}

func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	if !cfg.Telegram.Enabled {
		return &Notifier{enabled: false, logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &Notifier{enabled: false, logger: log}
	}

	log.Info("telegram bot connected", "username", bot.Self.UserName)

	return &Notifier{
		bot:     bot,
		chatID:  cfg.Telegram.ChatID,
		enabled: true,
		logger:  log,
	}
}

func (n *Notifier) NotifyBuildComplete(name string, winRate float64, trades int, source string) {
	msg := fmt.Sprintf("🛠 *Build complete* %s\nWin rate: %.2f%%\nTrades: %d\nData: %s",
		name, winRate, trades, source)
	n.send(msg)
}

func (n *Notifier) NotifyBuildFailed(name string, err error) {
	msg := fmt.Sprintf("⚠️ *Build failed* %s\n%v", name, err)
	n.send(msg)
}

func (n *Notifier) NotifyDeployed(name, symbol string) {
	msg := fmt.Sprintf("🚀 *Deployed* %s\nSymbol: %s", name, symbol)
	n.send(msg)
}

func (n *Notifier) NotifyStopped(name string) {
	msg := fmt.Sprintf("⏹ *Stopped* %s", name)
	n.send(msg)
}

func (n *Notifier) NotifyError(context string, err error) {
	msg := fmt.Sprintf("⚠️ *Error* [%s]\n%v", context, err)
	n.send(msg)
}

// Critical is the watchdog's alert channel.
func (n *Notifier) Critical(message string) {
	n.send("🆘 *TERMINAL* " + message)
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("send telegram message", "error", err)
	}
}
