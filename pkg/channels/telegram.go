package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/config"
	"github.com/pxfen/framegate/pkg/logger"
)

// telegramMaxLen is Telegram's message length limit.
const telegramMaxLen = 4096

// TelegramChannel is a long-polling Telegram connector. It relays text both
// ways; media handling is out of scope for the gateway.
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
					c.handleMessage(ctx, update.Message)
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

// Send delivers a bus-routed message, splitting it into chunks when it
// exceeds Telegram's limit. A failed chunk is logged and does not stop the
// remaining ones.
func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	sendTelegramText(ctx, c.bot, chatID, msg.Content)
	return nil
}

func (c *TelegramChannel) handleMessage(ctx context.Context, message *telego.Message) {
	user := message.From
	if user == nil {
		return
	}

	userID := strconv.FormatInt(user.ID, 10)
	senderID := userID
	if user.Username != "" {
		senderID = userID + "|" + user.Username
	}

	if !c.IsAllowed(userID) && !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"user_id":  userID,
			"username": user.Username,
		})
		return
	}

	content := message.Text
	if content == "" {
		content = message.Caption
	}
	if content == "" {
		return
	}

	chatID := message.Chat.ID
	reply := &telegramResponder{bot: c.bot, chatID: chatID}
	metadata := map[string]string{
		"message_id": strconv.Itoa(message.MessageID),
		"username":   user.Username,
		"is_group":   strconv.FormatBool(message.Chat.Type != "private"),
	}

	if err := c.HandleInbound(ctx, senderID, strconv.FormatInt(chatID, 10), content, reply, metadata); err != nil {
		logger.ErrorCF("telegram", "Pipeline handler failed", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

// telegramResponder replies into the chat that produced an inbound message.
type telegramResponder struct {
	bot    *telego.Bot
	chatID int64
}

func (r *telegramResponder) SendText(ctx context.Context, text string) error {
	sendTelegramText(ctx, r.bot, r.chatID, text)
	return nil
}

func (r *telegramResponder) SendImage(ctx context.Context, imageURL string) error {
	if _, err := r.bot.SendPhoto(ctx, tu.Photo(tu.ID(r.chatID), tu.FileFromURL(imageURL))); err != nil {
		logger.ErrorCF("telegram", "Failed to send photo", map[string]interface{}{
			"chat_id": r.chatID,
			"error":   err.Error(),
		})
	}
	return nil
}

func (r *telegramResponder) SendButtons(ctx context.Context, text string, buttons []bus.CardAction) error {
	row := make([]telego.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		btn := tu.InlineKeyboardButton(b.Title)
		if b.Type == "openUrl" {
			btn = btn.WithURL(b.Value)
		} else {
			btn = btn.WithCallbackData(b.Value)
		}
		row = append(row, btn)
	}

	msg := tu.Message(tu.ID(r.chatID), text).WithReplyMarkup(tu.InlineKeyboard(tu.InlineKeyboardRow(row...)))
	if _, err := r.bot.SendMessage(ctx, msg); err != nil {
		logger.ErrorCF("telegram", "Failed to send buttons", map[string]interface{}{
			"chat_id": r.chatID,
			"error":   err.Error(),
		})
	}
	return nil
}

// SendCustom is a Bot Framework escape hatch; Telegram has no equivalent
// payload to pass through.
func (r *telegramResponder) SendCustom(ctx context.Context, elements []map[string]any) error {
	return fmt.Errorf("telegram: custom payloads not supported")
}

func sendTelegramText(ctx context.Context, bot *telego.Bot, chatID int64, content string) {
	chunks := splitMessage(content, telegramMaxLen)
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			chunk = fmt.Sprintf("[%d/%d]\n%s", i+1, len(chunks), chunk)
		}
		if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			logger.ErrorCF("telegram", "Failed to send message chunk", map[string]interface{}{
				"chunk": i + 1,
				"error": err.Error(),
			})
		}
	}
}

// splitMessage splits content into chunks of at most maxLen bytes, preferring
// to break at a newline in the final third of a chunk.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	remaining := content

	for len(remaining) > 0 {
		chunkSize := maxLen
		if len(remaining) < chunkSize {
			chunkSize = len(remaining)
		}

		if chunkSize == maxLen {
			if lastNewline := strings.LastIndex(remaining[:chunkSize], "\n"); lastNewline > maxLen*2/3 {
				chunkSize = lastNewline + 1
			}
		}

		chunks = append(chunks, remaining[:chunkSize])
		remaining = remaining[chunkSize:]
	}

	return chunks
}
