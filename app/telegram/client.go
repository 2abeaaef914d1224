package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	e "nuclight.org/tg-relay/pkg/entities"
	"nuclight.org/tg-relay/pkg/logger"
)

const (
	// DefaultTimeout bounds requests which are not media uploads
	DefaultTimeout = 60 * time.Second

	// DownloadTimeout bounds a file download, same as a generic file upload
	DownloadTimeout = 360 * time.Second
)

var (
	ErrNoToken       = errors.New("telegram api token is not set")
	ErrTokenRejected = errors.New("telegram api token is rejected")
)

// Client is a bot API client. It runs one request at a time and is not safe
// for concurrent use.
type Client struct {
	Log      logger.Logger
	APIToken string

	// APIEndpoint and FileEndpoint replace telegram endpoints, both are format
	// strings taking token and method or file path
	APIEndpoint  string
	FileEndpoint string

	// Transport is used for all requests, http.DefaultTransport if nil
	Transport http.RoundTripper

	bot *tgbotapi.BotAPI
}

func (c *Client) Start(ctx context.Context) (err error) {
	if c.APIToken == "" {
		return ErrNoToken
	}

	log := c.Log

	err = tgbotapi.SetLogger(slog.NewLogLogger(log.Handler(), slog.LevelDebug))
	if err != nil {
		return fmt.Errorf("setting bot api logger: %w", err)
	}

	endpoint := c.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	client := c.httpClient(ctx, DefaultTimeout)

	c.bot, err = tgbotapi.NewBotAPIWithClient(c.APIToken, endpoint, client)
	if err == nil {
		log.Info("bot api created", "username", c.bot.Self.UserName)
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound) {
		return fmt.Errorf("creating bot api: %w: %s", ErrTokenRejected, apiErr.Message)
	}

	// getMe failed for a reason other than the token, each request will fail
	// or succeed on its own
	log.Warn("checking bot api token", "error", err)

	c.bot = &tgbotapi.BotAPI{
		Token:  c.APIToken,
		Client: client,
		Buffer: 100,
	}
	c.bot.SetAPIEndpoint(endpoint)

	return nil
}

func (c *Client) SendText(ctx context.Context, dest, text string) error {
	chat, err := takeChat(dest)
	if err != nil {
		return err
	}

	msg := tgbotapi.MessageConfig{
		BaseChat: chat,
		Text:     text,
	}

	return c.withBudget(ctx, DefaultTimeout, func() error {
		_, err := c.bot.Request(msg)
		return err
	})
}

// SendMedia uploads a local file. Missing file is reported with an error
// wrapping fs.ErrNotExist before anything is uploaded.
func (c *Client) SendMedia(ctx context.Context, req e.DeliveryRequest) error {
	chat, err := takeChat(req.Destination)
	if err != nil {
		return err
	}

	if _, err := os.Stat(req.Path); err != nil {
		return fmt.Errorf("checking file: %w", err)
	}

	conf, err := mediaConfig(req.Kind, chat, tgbotapi.FilePath(req.Path), req.Caption)
	if err != nil {
		return err
	}

	return c.withBudget(ctx, req.Timeout, func() error {
		_, err := c.bot.Request(conf)
		return err
	})
}

func (c *Client) FetchFileLocation(ctx context.Context, fileID string) (e.FileLocation, error) {
	var file tgbotapi.File

	err := c.withBudget(ctx, DefaultTimeout, func() (err error) {
		file, err = c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
		return err
	})
	if err != nil {
		return e.FileLocation{}, err
	}

	return e.FileLocation{
		RemotePath: file.FilePath,
		UniqueID:   file.FileUniqueID,
	}, nil
}

// DownloadBytes returns the body and status code, non-200 status is not an error
func (c *Client) DownloadBytes(ctx context.Context, remotePath string) ([]byte, int, error) {
	endpoint := c.FileEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.FileEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(endpoint, c.APIToken, remotePath), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient(ctx, DownloadTimeout).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("downloading file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading file: %w", err)
	}

	return content, resp.StatusCode, nil
}

// PollUpdates calls getUpdates, offset 0 is not sent
func (c *Client) PollUpdates(ctx context.Context, offset int) (e.Updates, error) {
	var resp *tgbotapi.APIResponse

	err := c.withBudget(ctx, DefaultTimeout, func() (err error) {
		resp, err = c.bot.Request(tgbotapi.UpdateConfig{Offset: offset})
		return err
	})
	if err != nil {
		return nil, err
	}

	var updates e.Updates
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}

	return updates, nil
}

func (c *Client) SetCommands(ctx context.Context, commands []e.Command) error {
	botCommands := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, cmd := range commands {
		botCommands = append(botCommands, tgbotapi.BotCommand{
			Command:     cmd.Name,
			Description: cmd.Description,
		})
	}

	return c.withBudget(ctx, DefaultTimeout, func() error {
		_, err := c.bot.Request(tgbotapi.NewSetMyCommands(botCommands...))
		return err
	})
}

// withBudget runs fn with bot requests bounded by ctx and timeout
func (c *Client) withBudget(ctx context.Context, timeout time.Duration, fn func() error) error {
	prev := c.bot.Client
	c.bot.Client = c.httpClient(ctx, timeout)
	defer func() { c.bot.Client = prev }()

	return fn()
}

func (c *Client) httpClient(ctx context.Context, timeout time.Duration) *budgetClient {
	transport := c.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &budgetClient{
		ctx:    ctx,
		client: &http.Client{Timeout: timeout, Transport: transport},
	}
}

type budgetClient struct {
	ctx    context.Context
	client *http.Client
}

func (b *budgetClient) Do(req *http.Request) (*http.Response, error) {
	return b.client.Do(req.WithContext(b.ctx))
}

func mediaConfig(kind e.MediaKind, chat tgbotapi.BaseChat, file tgbotapi.RequestFileData, caption string) (tgbotapi.Chattable, error) {
	base := tgbotapi.BaseFile{BaseChat: chat, File: file}

	switch kind {
	case e.MediaKindImage:
		return tgbotapi.PhotoConfig{BaseFile: base, Caption: caption}, nil
	case e.MediaKindVideo:
		return tgbotapi.VideoConfig{BaseFile: base, Caption: caption}, nil
	case e.MediaKindAudio:
		return tgbotapi.AudioConfig{BaseFile: base, Caption: caption}, nil
	case e.MediaKindAnimation:
		return tgbotapi.AnimationConfig{BaseFile: base, Caption: caption}, nil
	case e.MediaKindDocument:
		return tgbotapi.DocumentConfig{BaseFile: base, Caption: caption}, nil
	default:
		return nil, fmt.Errorf("unknown media kind: %s", kind)
	}
}

// takeChat accepts a numeric chat id or a @channel name
func takeChat(dest string) (tgbotapi.BaseChat, error) {
	if strings.HasPrefix(dest, "@") {
		return tgbotapi.BaseChat{ChannelUsername: dest}, nil
	}

	id, err := strconv.ParseInt(dest, 10, 64)
	if err != nil {
		return tgbotapi.BaseChat{}, fmt.Errorf("invalid chat %q: %w", dest, err)
	}

	return tgbotapi.BaseChat{ChatID: id}, nil
}
