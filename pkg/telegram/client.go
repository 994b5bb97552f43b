package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	apperrors "tgcord/internal/errors"
	"tgcord/internal/httputil"
	"tgcord/pkg/constants"

	"github.com/sirupsen/logrus"
)

// Client is the primary (bot) client of the source platform
type Client interface {
	GetMe(ctx context.Context) (*User, error)
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error)
	GetFile(ctx context.Context, fileID string) (*File, error)
	DownloadFile(ctx context.Context, filePath, dest string) (int64, error)
	CreateChatInviteLink(ctx context.Context, chatID int64, name string) (string, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SetWebhook(ctx context.Context, url, secret string) error
	DeleteWebhook(ctx context.Context) error
}

type BotClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL, token string, httpClient *http.Client) *BotClient {
	return NewClientWithLogger(baseURL, token, httpClient, nil)
}

func NewClientWithLogger(baseURL, token string, httpClient *http.Client, logger *logrus.Logger) *BotClient {
	if httpClient == nil {
		// long polling holds the connection for the poll timeout
		httpClient = &http.Client{Timeout: constants.DefaultTelegramTimeoutSec * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if baseURL == "" {
		baseURL = constants.TelegramAPIBaseURL
	}

	return &BotClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  httpClient,
		logger:  logger,
	}
}

func (c *BotClient) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *BotClient) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	payload := map[string]interface{}{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "edited_message", "channel_post", "edited_channel_post"},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *BotClient) GetFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.call(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DownloadFile streams a file returned by GetFile to dest and returns the
// number of bytes written. A partial file is removed on failure.
func (c *BotClient) DownloadFile(ctx context.Context, filePath, dest string) (int64, error) {
	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimPrefix(filePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", httputil.RedactURLError(err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, apperrors.WrapRetryable(httputil.RedactURLError(err), apperrors.ErrCodeNetwork, "telegram file download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.NewAPIError("telegram", "downloadFile", resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.DefaultFilePermissions)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(dest)
		if copyErr == nil {
			copyErr = closeErr
		}
		return 0, apperrors.WrapRetryable(copyErr, apperrors.ErrCodeNetwork, "telegram file download interrupted")
	}

	return n, nil
}

func (c *BotClient) CreateChatInviteLink(ctx context.Context, chatID int64, name string) (string, error) {
	payload := map[string]interface{}{"chat_id": chatID}
	if name != "" {
		payload["name"] = name
	}

	var link ChatInviteLink
	if err := c.call(ctx, "createChatInviteLink", payload, &link); err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

func (c *BotClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

func (c *BotClient) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]interface{}{
		"url":             url,
		"allowed_updates": []string{"message", "edited_message", "channel_post", "edited_channel_post"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

func (c *BotClient) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]interface{}{}, nil)
}

func (c *BotClient) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", httputil.RedactURLError(err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.WithField("method", method).Debug("Calling Telegram Bot API")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.WrapRetryable(httputil.RedactURLError(err), apperrors.ErrCodeNetwork, fmt.Sprintf("telegram %s request failed", method))
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return apperrors.NewAPIError("telegram", method, resp.StatusCode,
			fmt.Errorf("failed to decode response: %w", err))
	}

	if !result.OK {
		apiErr := &APIError{Method: method, Code: result.ErrorCode, Description: result.Description}
		if result.Parameters != nil {
			apiErr.RetryAfter = result.Parameters.RetryAfter
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		return apperrors.NewAPIError("telegram", method, apiErr.Code, apiErr)
	}

	if out != nil && len(result.Result) > 0 {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}
