// notify/notifier.go
package notify

import (
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"sync"
	"time"

	"nuanced_trader_go/config"
	"nuanced_trader_go/logs"
	"nuanced_trader_go/perf"
	"nuanced_trader_go/signal"
)

// Level classifies a notification for channel formatting.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

var levelEmoji = map[Level]string{
	LevelInfo:    "ℹ️",
	LevelWarning: "⚠️",
	LevelError:   "❌",
	LevelSuccess: "✅",
}

// maxRecentMessages bounds the duplicate-suppression cache.
const maxRecentMessages = 10

// Notifier fans notifications out to the enabled channels (Telegram,
// email) and suppresses duplicates of recently sent messages.
type Notifier struct {
	cfg        *config.NotificationsConfig
	botToken   string
	emailPass  string
	httpClient *http.Client

	mu     sync.Mutex
	recent []string
}

// NewNotifier creates a notifier from configuration. Secrets come from
// the environment-resolved config.
func NewNotifier(cfg *config.NotificationsConfig, env *config.EnvConfig) *Notifier {
	n := &Notifier{
		cfg:        cfg,
		botToken:   env.TelegramBotToken,
		emailPass:  env.EmailPassword,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	logs.Infof("Notification manager initialized (Email: %s, Telegram: %s)",
		enabledWord(n.emailEnabled()), enabledWord(n.telegramEnabled()))
	return n
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func enabledWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func (n *Notifier) telegramEnabled() bool {
	return n.cfg != nil && n.cfg.Enabled && n.cfg.Telegram != nil && n.cfg.Telegram.Enabled
}

func (n *Notifier) emailEnabled() bool {
	return n.cfg != nil && n.cfg.Enabled && n.cfg.Email != nil && n.cfg.Email.Enabled
}

// Send delivers a message to every enabled channel. Duplicate messages
// within the recent window are silently dropped. Returns true if at
// least one channel accepted the message.
func (n *Notifier) Send(message, subject string, level Level) bool {
	if subject == "" {
		subject = fmt.Sprintf("Trading Bot %s Notification", capitalize(string(level)))
	}

	if n.isDuplicate(message) {
		return true
	}

	logs.Infof("Notification: %s", message)

	sent := false
	if n.emailEnabled() {
		if err := n.sendEmail(message, subject); err != nil {
			logs.Errorf("Error sending email notification: %v", err)
		} else {
			sent = true
		}
	}
	if n.telegramEnabled() {
		if err := n.sendTelegram(message, level); err != nil {
			logs.Errorf("Error sending Telegram notification: %v", err)
		} else {
			sent = true
		}
	}
	return sent
}

func (n *Notifier) isDuplicate(message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, recent := range n.recent {
		if recent == message {
			return true
		}
	}
	n.recent = append(n.recent, message)
	if len(n.recent) > maxRecentMessages {
		n.recent = n.recent[1:]
	}
	return false
}

func (n *Notifier) sendTelegram(message string, level Level) error {
	tg := n.cfg.Telegram
	if n.botToken == "" || tg.ChatID == "" {
		return fmt.Errorf("missing required Telegram configuration")
	}

	emoji, ok := levelEmoji[level]
	if !ok {
		emoji = levelEmoji[LevelInfo]
	}
	formatted := fmt.Sprintf("%s *%s*\n```\n%s\n```", emoji, strings.ToUpper(string(level)), message)

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	data := url.Values{}
	data.Set("chat_id", tg.ChatID)
	data.Set("text", formatted)
	data.Set("parse_mode", "Markdown")

	resp, err := n.httpClient.PostForm(endpoint, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("telegram API returned HTTP %d", resp.StatusCode)
	}
	logs.Debugf("Telegram notification sent to chat %s", tg.ChatID)
	return nil
}

func (n *Notifier) sendEmail(message, subject string) error {
	em := n.cfg.Email
	if em.SMTPServer == "" || em.SMTPPort == 0 || em.SenderEmail == "" || em.ReceiverEmail == "" {
		return fmt.Errorf("missing required email configuration")
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n"+
		"<html><body><h2>%s</h2><pre>%s</pre></body></html>\r\n",
		em.SenderEmail, em.ReceiverEmail, subject, subject, message)

	addr := fmt.Sprintf("%s:%d", em.SMTPServer, em.SMTPPort)
	var auth smtp.Auth
	if n.emailPass != "" {
		auth = smtp.PlainAuth("", em.SenderEmail, n.emailPass, em.SMTPServer)
	}
	if err := smtp.SendMail(addr, auth, em.SenderEmail, []string{em.ReceiverEmail}, []byte(body)); err != nil {
		return err
	}
	logs.Debugf("Email notification sent to %s", em.ReceiverEmail)
	return nil
}

// SendTrade formats and delivers a trade-execution notification.
func (n *Notifier) SendTrade(sig *signal.Signal, price float64) bool {
	subject := fmt.Sprintf("Trade Executed: %s %s", strings.ToUpper(string(sig.Action)), sig.Pair)

	var sb strings.Builder
	sb.WriteString("Trade Executed:\n")
	fmt.Fprintf(&sb, "Pair: %s\n", sig.Pair)
	fmt.Fprintf(&sb, "Action: %s\n", strings.ToUpper(string(sig.Action)))
	fmt.Fprintf(&sb, "Amount: %.8f\n", sig.Amount)
	if price > 0 {
		fmt.Fprintf(&sb, "Price: %.8f\n", price)
	}
	if sig.StopLoss > 0 {
		fmt.Fprintf(&sb, "Stop Loss: %.8f\n", sig.StopLoss)
	}
	if sig.TakeProfit != nil {
		if sig.TakeProfit.IsScaled() {
			levels := make([]string, 0, len(sig.TakeProfit.Scaled()))
			for _, tp := range sig.TakeProfit.Scaled() {
				levels = append(levels, fmt.Sprintf("%.8f", tp))
			}
			fmt.Fprintf(&sb, "Take Profit Levels: %s\n", strings.Join(levels, ", "))
		} else {
			fmt.Fprintf(&sb, "Take Profit: %.8f\n", sig.TakeProfit.Single())
		}
	}
	return n.Send(sb.String(), subject, LevelSuccess)
}

// SendError formats and delivers an error notification.
func (n *Notifier) SendError(errMessage, context string) bool {
	var sb strings.Builder
	sb.WriteString("Error occurred in the trading bot\n")
	if context != "" {
		fmt.Fprintf(&sb, "Context: %s\n", context)
	}
	fmt.Fprintf(&sb, "Error: %s\n", errMessage)
	return n.Send(sb.String(), "Trading Bot Error", LevelError)
}

// SendPerformanceSummary formats and delivers a performance summary.
func (n *Notifier) SendPerformanceSummary(summary perf.Summary) bool {
	var sb strings.Builder
	sb.WriteString("Performance Summary:\n")
	fmt.Fprintf(&sb, "Total Trades: %d\n", summary.TotalTrades)
	fmt.Fprintf(&sb, "Win Rate: %.2f%%\n", summary.WinRate*100)
	fmt.Fprintf(&sb, "Profit Factor: %.4f\n", summary.ProfitFactor)
	fmt.Fprintf(&sb, "Total Return: %.2f%%\n", summary.TotalReturnPct)
	fmt.Fprintf(&sb, "Sharpe Ratio: %.4f\n", summary.SharpeRatio)
	fmt.Fprintf(&sb, "Max Drawdown: %.2f%%\n", summary.MaxDrawdownPct)
	fmt.Fprintf(&sb, "Expectancy: %.4f\n", summary.Expectancy)
	return n.Send(sb.String(), "Trading Bot Performance Summary", LevelInfo)
}
