package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "tgcord/internal/errors"
	"tgcord/internal/httputil"
	"tgcord/pkg/constants"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const maxErrorBodyBytes = 512

// Options configures a WebhookClient. Zero values fall back to defaults.
type Options struct {
	HTTPClient   *http.Client
	UploadClient *http.Client
	Logger       *logrus.Logger
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	// OnRetry is called before every retry wait.
	OnRetry func(operation string, attempt int, err error)
}

type WebhookClient struct {
	client      *http.Client
	upload      *http.Client
	logger      *logrus.Logger
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	onRetry     func(operation string, attempt int, err error)
}

func NewClient(opts Options) *WebhookClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: constants.DiscordRequestTimeout * time.Second}
	}
	if opts.UploadClient == nil {
		opts.UploadClient = &http.Client{Timeout: constants.DiscordUploadTimeout * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetLevel(logrus.WarnLevel)
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = constants.DiscordMaxBackoffSec * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = constants.DiscordMaxAttempts
	}

	return &WebhookClient{
		client:      opts.HTTPClient,
		upload:      opts.UploadClient,
		logger:      opts.Logger,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		maxAttempts: opts.MaxAttempts,
		onRetry:     opts.OnRetry,
	}
}

// TruncateContent cuts content to the destination's message length limit.
func TruncateContent(content string) string {
	if utf8.RuneCountInString(content) <= constants.DiscordMaxContentChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:constants.DiscordMaxContentChars-1]) + "…"
}

func (c *WebhookClient) PostText(ctx context.Context, endpoint, content string) (*Delivery, error) {
	target, threadID, err := postURL(endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(contentPayload{Content: TruncateContent(content), AllowedMentions: allowedMentions{Parse: []string{}}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var msg webhookMessage
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	if err := c.do(ctx, "post", c.client, build, &msg, false); err != nil {
		return nil, err
	}
	return newDelivery(msg, threadID), nil
}

// PostFile uploads path as a multipart attachment. The file is streamed and
// reopened on every attempt, so large uploads are never buffered in memory.
func (c *WebhookClient) PostFile(ctx context.Context, endpoint, path, filename, content string) (*Delivery, error) {
	target, threadID, err := postURL(endpoint)
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	payload, err := json.Marshal(contentPayload{Content: TruncateContent(content), AllowedMentions: allowedMentions{Parse: []string{}}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var msg webhookMessage
	build := func(ctx context.Context) (*http.Request, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open media file: %w", err)
		}

		pr, pw := io.Pipe()
		writer := multipart.NewWriter(pw)
		go func() {
			defer file.Close()
			pw.CloseWithError(writeForm(writer, file, filename, payload))
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
		if err != nil {
			pr.CloseWithError(err)
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}

	if err := c.do(ctx, "upload", c.upload, build, &msg, false); err != nil {
		return nil, err
	}
	return newDelivery(msg, threadID), nil
}

// writeForm sends the message fields as payload_json so uploads carry the
// same allowed_mentions as plain posts.
func writeForm(writer *multipart.Writer, file io.Reader, filename string, payload []byte) error {
	if err := writer.WriteField("payload_json", string(payload)); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	return writer.Close()
}

func (c *WebhookClient) EditMessage(ctx context.Context, endpoint, messageID, content, threadID string) error {
	target, err := messageURL(endpoint, messageID, threadID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(contentPayload{Content: TruncateContent(content), AllowedMentions: allowedMentions{Parse: []string{}}})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	return c.do(ctx, "edit", c.client, build, nil, false)
}

// DeleteMessage removes a relayed message. A missing message counts as
// deleted. When the delete keeps failing the message is overwritten with
// TombstoneText instead.
func (c *WebhookClient) DeleteMessage(ctx context.Context, endpoint, messageID, threadID string) error {
	target, err := messageURL(endpoint, messageID, threadID)
	if err != nil {
		return err
	}

	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	}

	delErr := c.do(ctx, "delete", c.client, build, nil, true)
	if delErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return delErr
	}

	c.logger.WithError(delErr).WithField("message_id", messageID).Warn("Delete failed, falling back to tombstone edit")
	if err := c.EditMessage(ctx, endpoint, messageID, TombstoneText, threadID); err != nil {
		return fmt.Errorf("delete failed (%v) and tombstone edit failed: %w", delErr, err)
	}
	return nil
}

type requestBuilder func(ctx context.Context) (*http.Request, error)

func (c *WebhookClient) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.maxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

// do runs one webhook call under the retry policy: rate limits, 5xx and
// network errors are retried, every other non-2xx status is terminal.
func (c *WebhookClient) do(ctx context.Context, op string, client *http.Client, build requestBuilder, out interface{}, notFoundOK bool) error {
	attempt := 0
	operation := func() error {
		attempt++
		req, err := build(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", httputil.RedactURLError(err)))
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return apperrors.WrapRetryable(httputil.RedactURLError(err), apperrors.ErrCodeNetwork, fmt.Sprintf("discord %s request failed", op))
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		if notFoundOK && resp.StatusCode == http.StatusNotFound {
			return nil
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out != nil && len(bytes.TrimSpace(body)) > 0 {
				if err := json.Unmarshal(body, out); err != nil {
					return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
				}
			}
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			var rl rateLimitBody
			if json.Unmarshal(body, &rl) == nil && rl.RetryAfter > 0 {
				c.logger.WithFields(logrus.Fields{
					"operation":   op,
					"retry_after": rl.RetryAfter,
					"global":      rl.Global,
				}).Debug("Discord rate limit hit")
			}
		}

		appErr := apperrors.NewDeliveryError(op, resp.StatusCode, truncateBody(body))
		if appErr.Retryable {
			return appErr
		}
		return backoff.Permanent(appErr)
	}

	notify := func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"wait":      wait.String(),
		}).WithError(err).Warn("Discord call failed, retrying")
		if c.onRetry != nil {
			c.onRetry(op, attempt, err)
		}
	}

	return backoff.RetryNotify(operation, c.newBackOff(ctx), notify)
}

func newDelivery(msg webhookMessage, threadID string) *Delivery {
	return &Delivery{MessageID: msg.ID, ChannelID: msg.ChannelID, ThreadID: threadID}
}

func truncateBody(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return string(body)
}

// postURL adds wait=true so the webhook answers with the created message.
func postURL(endpoint string) (string, string, error) {
	u, err := parseEndpoint(endpoint)
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()
	return u.String(), q.Get("thread_id"), nil
}

func messageURL(endpoint, messageID, threadID string) (string, error) {
	if messageID == "" {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "message id is required")
	}
	u, err := parseEndpoint(endpoint)
	if err != nil {
		return "", err
	}
	if threadID == "" {
		threadID = u.Query().Get("thread_id")
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/messages/" + messageID
	u.RawPath = ""
	q := url.Values{}
	if threadID != "" {
		q.Set("thread_id", threadID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid webhook endpoint")
	}
	return u, nil
}
