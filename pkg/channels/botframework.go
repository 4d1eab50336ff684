package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/config"
	"github.com/pxfen/framegate/pkg/logger"
	"github.com/pxfen/framegate/pkg/utils"
)

const (
	botframeworkOAuthPath   = "botframework.com/oauth2/v2.0/token"
	botframeworkTokenScope  = "https://api.botframework.com/.default"
	botframeworkSendTimeout = 60 * time.Second
)

// tokenCache holds the one service token shared by every conversation of a
// channel instance, refreshing it through the OAuth2 client-credentials flow
// when it expires.
type tokenCache struct {
	conf *clientcredentials.Config
	mu   sync.Mutex
	tok  *oauth2.Token
}

func newTokenCache(appID, appPassword, tokenURL string) *tokenCache {
	return &tokenCache{
		conf: &clientcredentials.Config{
			ClientID:     appID,
			ClientSecret: appPassword,
			TokenURL:     tokenURL,
			Scopes:       []string{botframeworkTokenScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
}

// Token returns the cached token while now < expiry and fetches a fresh one
// otherwise. Concurrent refreshes may race; each produces an independently
// valid token and the last writer wins. The fetch happens outside the mutex
// so readers of a still-valid token never wait on a refresh.
func (tc *tokenCache) Token(ctx context.Context) (*oauth2.Token, error) {
	tc.mu.Lock()
	tok := tc.tok
	tc.mu.Unlock()

	if tok != nil && tok.AccessToken != "" && time.Now().Before(tok.Expiry) {
		return tok, nil
	}

	fresh, err := tc.conf.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("botframework: token request: %w", err)
	}

	tc.mu.Lock()
	tc.tok = fresh
	tc.mu.Unlock()
	return fresh, nil
}

// conversationRef is the addressing a Bot Framework activity supplies for
// replying to its conversation. The platform resends it with every event, so
// one ref is built per event and never reused across events.
type conversationRef struct {
	ConversationID string
	RecipientID    string          // user the reply is addressed to
	Bot            json.RawMessage // bot identity object, echoed back verbatim as "from"
	ServiceURL     string
}

func (ref conversationRef) activityURL() string {
	base := strings.TrimSuffix(ref.ServiceURL, "/")
	return fmt.Sprintf("%s/v3/conversations/%s/activities", base, ref.ConversationID)
}

// botframeworkSender delivers activity fragments to one conversation.
// Delivery failures are logged and swallowed: the pipeline never observes a
// failed send, only the user does, by not receiving a bubble.
type botframeworkSender struct {
	ref    conversationRef
	tokens *tokenCache
	client *http.Client
}

func newBotframeworkSender(ref conversationRef, tokens *tokenCache, client *http.Client) *botframeworkSender {
	return &botframeworkSender{ref: ref, tokens: tokens, client: client}
}

// sendActivity merges fragment over the base envelope and posts it. Fragment
// fields override envelope defaults.
func (s *botframeworkSender) sendActivity(ctx context.Context, fragment map[string]any) error {
	activity := map[string]any{
		"type":      "message",
		"recipient": map[string]any{"id": s.ref.RecipientID},
		"channelData": map[string]any{
			"notification": map[string]any{"alert": "true"},
		},
		"text": "",
	}
	if len(s.ref.Bot) > 0 {
		activity["from"] = s.ref.Bot
	}
	for k, v := range fragment {
		activity[k] = v
	}

	tok, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("botframework: no auth headers: %w", err)
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("botframework: marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ref.activityURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("botframework: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("botframework: post activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("botframework: send failed: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (s *botframeworkSender) logSendError(err error) {
	logger.ErrorCF("botframework", "Failed to send activity", map[string]interface{}{
		"conversation_id": s.ref.ConversationID,
		"error":           err.Error(),
	})
}

// SendText delivers one activity per paragraph, sequentially and in source
// order. A failed fragment is logged and does not stop the remaining ones.
func (s *botframeworkSender) SendText(ctx context.Context, text string) error {
	for _, fragment := range textFragments(text) {
		if err := s.sendActivity(ctx, fragment); err != nil {
			s.logSendError(err)
		}
	}
	return nil
}

func (s *botframeworkSender) SendImage(ctx context.Context, imageURL string) error {
	if err := s.sendActivity(ctx, imageFragment(imageURL)); err != nil {
		s.logSendError(err)
	}
	return nil
}

func (s *botframeworkSender) SendButtons(ctx context.Context, text string, buttons []bus.CardAction) error {
	if err := s.sendActivity(ctx, buttonsFragment(text, buttons)); err != nil {
		s.logSendError(err)
	}
	return nil
}

// SendCustom passes pipeline-built JSON through verbatim. An empty elements
// slice is a caller error and is rejected before any network call.
func (s *botframeworkSender) SendCustom(ctx context.Context, elements []map[string]any) error {
	fragment, err := customFragment(elements)
	if err != nil {
		return err
	}
	if err := s.sendActivity(ctx, fragment); err != nil {
		s.logSendError(err)
	}
	return nil
}

// botframeworkActivity is the subset of the inbound activity JSON the
// gateway reads.
type botframeworkActivity struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	ServiceURL   string `json:"serviceUrl"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	Recipient json.RawMessage `json:"recipient"`
	From      struct {
		ID string `json:"id"`
	} `json:"from"`
}

// dispatchOutcome is the explicit result of handling one webhook event. All
// outcomes map to the same 200 acknowledgment; the distinction exists for
// logs and tests.
type dispatchOutcome int

const (
	outcomeDispatched dispatchOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// BotFrameworkChannel bridges Microsoft Bot Framework to the bus: a webhook
// server for inbound activities and token-authenticated posts for outbound
// ones.
type BotFrameworkChannel struct {
	*BaseChannel
	config config.BotFrameworkConfig
	tokens *tokenCache
	client *http.Client
	server *http.Server

	// conversation ID -> ref from the latest event, for bus-routed sends
	conversations sync.Map
}

func NewBotFrameworkChannel(cfg config.BotFrameworkConfig, messageBus *bus.MessageBus) (*BotFrameworkChannel, error) {
	if cfg.AppID == "" || cfg.AppPassword == "" {
		return nil, fmt.Errorf("botframework app_id and app_password not configured")
	}

	tokenURL := fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.LoginHost, "/"), botframeworkOAuthPath)

	return &BotFrameworkChannel{
		BaseChannel: NewBaseChannel("botframework", messageBus, cfg.AllowFrom),
		config:      cfg,
		tokens:      newTokenCache(cfg.AppID, cfg.AppPassword, tokenURL),
		client:      &http.Client{Timeout: botframeworkSendTimeout},
	}, nil
}

func (c *BotFrameworkChannel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handleHealth)
	mux.HandleFunc("/webhook", c.handleWebhook)

	c.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", c.config.WebhookHost, c.config.WebhookPort),
		Handler: mux,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("botframework", "Webhook server stopped", map[string]interface{}{
				"error": err.Error(),
			})
			c.setRunning(false)
		}
	}()

	c.setRunning(true)
	logger.InfoCF("botframework", "Webhook server listening", map[string]interface{}{
		"addr": c.server.Addr,
	})
	return nil
}

func (c *BotFrameworkChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// Send delivers a bus-routed message using the conversation ref recorded by
// the chat's most recent inbound event. The per-event Responder carried on
// InboundMessage is the primary reply path; this one serves pipelines that
// address replies by channel and chat ID.
func (c *BotFrameworkChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("botframework channel not running")
	}
	v, ok := c.conversations.Load(msg.ChatID)
	if !ok {
		return fmt.Errorf("botframework: no conversation reference for chat %s", msg.ChatID)
	}
	return newBotframeworkSender(v.(conversationRef), c.tokens, c.client).SendText(ctx, msg.Content)
}

func (c *BotFrameworkChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleWebhook always acknowledges with 200 "success", whatever happened
// inside: anything else triggers platform-side redelivery storms. The
// response is held open until the pipeline handler returns.
func (c *BotFrameworkChannel) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch c.dispatchActivity(r) {
	case outcomeDispatched:
		logger.DebugC("botframework", "Activity dispatched")
	case outcomeSkipped:
		// already logged with its reason
	case outcomeFailed:
		logger.ErrorC("botframework", "Activity handling failed, acknowledging anyway")
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "success")
}

func (c *BotFrameworkChannel) dispatchActivity(r *http.Request) dispatchOutcome {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		logger.ErrorCF("botframework", "Failed to read webhook body", map[string]interface{}{
			"error": err.Error(),
		})
		return outcomeFailed
	}

	var activity botframeworkActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		logger.ErrorCF("botframework", "Failed to parse webhook body", map[string]interface{}{
			"error": err.Error(),
		})
		logger.DebugCF("botframework", "Unparseable webhook body", map[string]interface{}{
			"body": utils.Truncate(string(body), 512),
		})
		return outcomeFailed
	}

	if activity.Type != "message" {
		logger.InfoCF("botframework", "Ignoring non-message activity", map[string]interface{}{
			"type": activity.Type,
		})
		return outcomeSkipped
	}

	if activity.Conversation.ID == "" || activity.ServiceURL == "" {
		logger.ErrorCF("botframework", "Message activity missing conversation or serviceUrl", map[string]interface{}{
			"conversation_id": activity.Conversation.ID,
		})
		return outcomeFailed
	}

	if !c.IsAllowed(activity.From.ID) {
		logger.DebugCF("botframework", "Message rejected by allowlist", map[string]interface{}{
			"sender_id": activity.From.ID,
		})
		return outcomeSkipped
	}

	ref := conversationRef{
		ConversationID: activity.Conversation.ID,
		RecipientID:    activity.From.ID,
		Bot:            activity.Recipient,
		ServiceURL:     activity.ServiceURL,
	}
	c.conversations.Store(ref.ConversationID, ref)

	sender := newBotframeworkSender(ref, c.tokens, c.client)
	metadata := map[string]string{
		"service_url": ref.ServiceURL,
	}

	if err := c.HandleInbound(r.Context(), activity.From.ID, ref.ConversationID, activity.Text, sender, metadata); err != nil {
		logger.ErrorCF("botframework", "Pipeline handler failed", map[string]interface{}{
			"conversation_id": ref.ConversationID,
			"error":           err.Error(),
		})
		return outcomeFailed
	}
	return outcomeDispatched
}
