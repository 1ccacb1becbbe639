// Package telegram is a small Bot API client covering the calls the
// notifier needs.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultAPIURL = "https://api.telegram.org"

// MessageID identifies a sent message within its chat.
type MessageID int64

// Message is the subset of the Bot API message object we read back.
type Message struct {
	MessageID MessageID `json:"message_id"`
	Date      int64     `json:"date"`
	Text      string    `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// APIError is a Bot API response with "ok": false.
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram api error %d: %s (retry after %s)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

type envelope[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

// SendOptions are the optional parts of a sendMessage call.
type SendOptions struct {
	// ChatID overrides the client's default chat.
	ChatID                string
	ReplyToMessageID      MessageID
	LinkURL               string
	LinkText              string
	DisableNotification   bool
	DisableWebPagePreview bool
}

type sendMessageRequest struct {
	ChatID                string       `json:"chat_id"`
	Text                  string       `json:"text"`
	ParseMode             string       `json:"parse_mode,omitempty"`
	ReplyToMessageID      MessageID    `json:"reply_to_message_id,omitempty"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
	DisableNotification   bool         `json:"disable_notification,omitempty"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview,omitempty"`
}

type editMessageRequest struct {
	ChatID                string       `json:"chat_id"`
	MessageID             MessageID    `json:"message_id"`
	Text                  string       `json:"text"`
	ParseMode             string       `json:"parse_mode,omitempty"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview,omitempty"`
}

type pinMessageRequest struct {
	ChatID              string    `json:"chat_id"`
	MessageID           MessageID `json:"message_id"`
	DisableNotification bool      `json:"disable_notification,omitempty"`
}

// Client talks to one bot and defaults to one chat.
type Client struct {
	http      *resty.Client
	chatID    string
	parseMode string
}

type Config struct {
	APIURL    string
	Token     string
	ChatID    string
	ParseMode string
	Timeout   time.Duration
}

func New(cfg Config) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(apiURL, "/") + "/bot" + cfg.Token)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	return &Client{http: client, chatID: cfg.ChatID, parseMode: cfg.ParseMode}
}

func markup(url, text string) *replyMarkup {
	if url == "" {
		return nil
	}
	if text == "" {
		text = "Open Direct Link"
	}
	return &replyMarkup{InlineKeyboard: [][]inlineButton{{{Text: text, URL: url}}}}
}

func (c *Client) chat(override string) string {
	if override != "" {
		return override
	}
	return c.chatID
}

func call[T any](ctx context.Context, c *Client, method string, body any) (T, error) {
	var out envelope[T]
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/" + method)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("telegram %s: %w", method, err)
	}
	if res.IsError() || !out.OK {
		var zero T
		code := out.ErrorCode
		if code == 0 {
			code = res.StatusCode()
		}
		desc := out.Description
		if desc == "" {
			desc = res.Status()
		}
		return zero, &APIError{
			Code:        code,
			Description: desc,
			RetryAfter:  time.Duration(out.Parameters.RetryAfter) * time.Second,
		}
	}
	return out.Result, nil
}

// SendMessage posts text to the chat and returns the created message.
func (c *Client) SendMessage(ctx context.Context, text string, opts SendOptions) (Message, error) {
	req := sendMessageRequest{
		ChatID:                c.chat(opts.ChatID),
		Text:                  text,
		ParseMode:             c.parseMode,
		ReplyToMessageID:      opts.ReplyToMessageID,
		ReplyMarkup:           markup(opts.LinkURL, opts.LinkText),
		DisableNotification:   opts.DisableNotification,
		DisableWebPagePreview: opts.DisableWebPagePreview,
	}
	return call[Message](ctx, c, "sendMessage", req)
}

// EditMessageText replaces the text of a message sent earlier.
func (c *Client) EditMessageText(ctx context.Context, id MessageID, text string, opts SendOptions) (Message, error) {
	req := editMessageRequest{
		ChatID:                c.chat(opts.ChatID),
		MessageID:             id,
		Text:                  text,
		ParseMode:             c.parseMode,
		ReplyMarkup:           markup(opts.LinkURL, opts.LinkText),
		DisableWebPagePreview: opts.DisableWebPagePreview,
	}
	return call[Message](ctx, c, "editMessageText", req)
}

// PinChatMessage pins id in the default chat.
func (c *Client) PinChatMessage(ctx context.Context, id MessageID, silent bool) error {
	req := pinMessageRequest{ChatID: c.chatID, MessageID: id, DisableNotification: silent}
	_, err := call[bool](ctx, c, "pinChatMessage", req)
	return err
}
