package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/notifyqueue"
	"sentinel/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Message is one rendered notification bound for a channel sender.
// Params: rendered body plus the originating queue job.
// Returns: sender input.
type Message struct {
	Body string
	Job  notifyqueue.Job
}

// ChannelSender sends one outbound notification to one channel.
// Params: context and rendered message.
// Returns: transport error when the send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, message Message) error
}

// Dispatcher renders queue jobs and delivers them with per-channel retries.
// Params: sender set, renderer, and retry policies.
// Returns: delivery handler for queue workers.
type Dispatcher struct {
	senders  map[string]ChannelSender
	channels []string
	retries  map[string]config.NotifyRetry
	renderer *templatefmt.Renderer
	logger   *slog.Logger
}

// NewDispatcher builds the dispatcher from enabled channels.
// Params: notify config, compiled renderer, and optional logger.
// Returns: configured dispatcher.
func NewDispatcher(cfg config.NotifyConfig, renderer *templatefmt.Renderer, logger *slog.Logger) *Dispatcher {
	senders := make(map[string]ChannelSender)
	retries := make(map[string]config.NotifyRetry)
	if cfg.Telegram.Enabled {
		senders[config.TransportTelegram] = NewTelegramSender(cfg.Telegram)
		retries[config.TransportTelegram] = cfg.Telegram.Retry
	}
	if cfg.Webhook.Enabled {
		senders[config.TransportWebhook] = NewWebhookSender(cfg.Webhook)
		retries[config.TransportWebhook] = cfg.Webhook.Retry
	}
	channels := make([]string, 0, len(senders))
	for channel := range senders {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return &Dispatcher{
		senders:  senders,
		channels: channels,
		retries:  retries,
		renderer: renderer,
		logger:   logger,
	}
}

// Channels returns the configured channel list.
// Params: none.
// Returns: deterministic sender keys.
func (d *Dispatcher) Channels() []string {
	return d.channels
}

// ChannelForTransport maps a medium transport onto a delivery channel.
// Telegram media go to the Telegram bot; every other transport is handed
// to the webhook endpoint, which owns the actual fan-out.
// Params: normalized medium transport.
// Returns: channel key used to pick a sender.
func ChannelForTransport(transport string) string {
	if transport == config.TransportTelegram {
		return config.TransportTelegram
	}
	return config.TransportWebhook
}

// Deliver renders one queue job and sends it through its channel.
// Configuration and rendering failures are permanent; transport failures
// stay retryable for the queue.
// Params: context and queue job.
// Returns: delivery error classified for the queue retry policy.
func (d *Dispatcher) Deliver(ctx context.Context, job notifyqueue.Job) error {
	sender, ok := d.senders[job.Channel]
	if !ok {
		return notifyqueue.MarkPermanent(fmt.Errorf("channel %q is not configured", job.Channel))
	}
	body, err := d.render(job)
	if err != nil {
		return notifyqueue.MarkPermanent(err)
	}
	return d.sendWithRetry(ctx, sender, Message{Body: body, Job: job}, d.retries[job.Channel])
}

// render builds the typed template context for the job kind.
// Params: queue job.
// Returns: rendered message body or template error.
func (d *Dispatcher) render(job notifyqueue.Job) (string, error) {
	kind := templatefmt.Kind(job.Kind)
	switch kind {
	case templatefmt.KindAlert, templatefmt.KindRecovery, templatefmt.KindTest:
		return d.renderer.Render(kind, templatefmt.AlertContext{
			CheckID:   job.CheckID,
			Entity:    job.Entity,
			CheckName: job.CheckName,
			Condition: job.Condition,
			Summary:   job.Summary,
			Details:   job.Details,
			Time:      time.Unix(job.Timestamp, 0).UTC().Format(time.RFC3339),
		})
	case templatefmt.KindAcknowledgement:
		return d.renderer.Render(kind, templatefmt.AcknowledgementContext{
			CheckID:  job.CheckID,
			Summary:  job.Summary,
			Duration: time.Duration(job.DurationSec) * time.Second,
		})
	case templatefmt.KindRollup, templatefmt.KindRollupRecovery:
		return d.renderer.Render(kind, templatefmt.RollupContext{
			ContactName:   job.ContactName,
			CheckID:       job.CheckID,
			AlertingCount: job.AlertingCount,
		})
	default:
		return "", fmt.Errorf("unknown message kind %q", job.Kind)
	}
}

// sendWithRetry sends one message with the channel-specific retry policy.
// Params: sender, message, and retry policy for the sender channel.
// Returns: final error after retries.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, message Message, retry config.NotifyRetry) error {
	if !retry.Enabled {
		return sender.Send(ctx, message)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	var timer *time.Timer
	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}

	for {
		attempt++
		err := sender.Send(ctx, message)
		if err == nil {
			stopTimer()
			if retry.LogEachAttempt && attempt > 1 && d.logger != nil {
				d.logger.Info("send recovered after retries", "channel", sender.Channel(), "attempt", attempt)
			}
			return nil
		}
		if notifyqueue.IsPermanent(err) {
			stopTimer()
			return err
		}
		if retry.LogEachAttempt && d.logger != nil {
			d.logger.Warn("send attempt failed", "channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}

		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			stopTimer()
			return fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			stopTimer()
			timer.Reset(backoff)
		}
		select {
		case <-ctx.Done():
			stopTimer()
			return ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// TelegramSender sends notifications through the Telegram Bot API.
// Params: bot token, chat id, and API base URL from config.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates the Telegram sender.
// Params: Telegram notifier config.
// Returns: initialized sender; init errors surface on Send.
func NewTelegramSender(cfg config.TelegramNotifier) *TelegramSender {
	sender := &TelegramSender{
		chatID: normalizeChatID(cfg.ChatID),
	}

	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = errors.New("telegram bot token is required")
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = errors.New("telegram chat_id is required")
		return sender
	}

	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
	}
	if strings.TrimSpace(cfg.APIBase) != "" {
		options = append(options, tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")))
	}
	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns the sender channel name.
// Params: none.
// Returns: static channel key.
func (s *TelegramSender) Channel() string {
	return config.TransportTelegram
}

// Send posts one message to the Telegram chat.
// Params: context and rendered message.
// Returns: transport or API error.
func (s *TelegramSender) Send(ctx context.Context, message Message) error {
	if s.initErr != nil {
		return notifyqueue.MarkPermanent(s.initErr)
	}
	if s.client == nil {
		return notifyqueue.MarkPermanent(errors.New("telegram client is not initialized"))
	}

	request := &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      message.Body,
		ParseMode: tgmodels.ParseModeHTML,
	}
	sent, err := s.client.SendMessage(ctx, request)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: configured chat ID value from TOML.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// webhookPayload is the JSON body posted to the webhook endpoint.
// Params: message body plus routing metadata from the job.
// Returns: serialized delivery envelope.
type webhookPayload struct {
	Kind      string `json:"kind"`
	Transport string `json:"transport"`
	Address   string `json:"address"`
	ContactID string `json:"contact_id"`
	CheckID   string `json:"check_id"`
	Entity    string `json:"entity"`
	CheckName string `json:"check_name"`
	Condition string `json:"condition"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// WebhookSender posts rendered notifications to a configured HTTP endpoint.
// The endpoint owns the final fan-out for email/sms/pager media.
// Params: endpoint URL, method, timeout, and headers.
// Returns: generic HTTP sender.
type WebhookSender struct {
	cfg    config.WebhookNotifier
	client *http.Client
}

// NewWebhookSender creates the webhook sender.
// Params: webhook notifier config.
// Returns: initialized sender.
func NewWebhookSender(cfg config.WebhookNotifier) *WebhookSender {
	return &WebhookSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

// Channel returns the sender channel name.
// Params: none.
// Returns: static channel key.
func (s *WebhookSender) Channel() string {
	return config.TransportWebhook
}

// Send delivers the JSON envelope to the configured endpoint.
// Params: context and rendered message.
// Returns: transport or HTTP status error.
func (s *WebhookSender) Send(ctx context.Context, message Message) error {
	payload := webhookPayload{
		Kind:      message.Job.Kind,
		Transport: message.Job.Transport,
		Address:   message.Job.Address,
		ContactID: message.Job.ContactID,
		CheckID:   message.Job.CheckID,
		Entity:    message.Job.Entity,
		CheckName: message.Job.CheckName,
		Condition: message.Job.Condition,
		Severity:  message.Job.Severity,
		Message:   message.Body,
		Timestamp: message.Job.Timestamp,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return notifyqueue.MarkPermanent(fmt.Errorf("encode webhook payload: %w", err))
	}

	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return notifyqueue.MarkPermanent(fmt.Errorf("build webhook request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedHTTPStatusError("webhook", response)
	}
	return nil
}

// unexpectedHTTPStatusError formats a non-2xx HTTP response with optional body.
// Params: sender prefix label and HTTP response pointer.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	if response == nil {
		return fmt.Errorf("%s status=0", prefix)
	}
	rawBody, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
}
