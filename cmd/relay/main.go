package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jessevdk/go-flags"
	"nuclight.org/tg-relay/app/dispatcher"
	"nuclight.org/tg-relay/app/telegram"
	e "nuclight.org/tg-relay/pkg/entities"
	"nuclight.org/tg-relay/pkg/logger"
)

type options struct {
	TelegramAPIToken string `long:"telegram-api-token" env:"TELEGRAM_API_TOKEN" required:"true" description:"telegram bot api token"`
	ChatID           string `long:"chat-id" env:"TELEGRAM_CHAT_ID" description:"chat id or @channel to send to"`
	Message          string `long:"message" description:"message to send, used as a caption when files are sent"`

	Images     []string `long:"image" description:"image file to send, can be repeated"`
	Videos     []string `long:"video" description:"video file to send, can be repeated"`
	Audios     []string `long:"audio" description:"audio file to send, can be repeated"`
	Documents  []string `long:"document" description:"document file to send, can be repeated"`
	Animations []string `long:"animation" description:"animation file to send, can be repeated"`
	Files      []string `long:"file" description:"arbitrary file to send, kind is chosen by extension, can be repeated"`

	Updates  int      `long:"updates" default:"0" description:"id of the last processed update, updates after it are listed"`
	Fetch    string   `long:"fetch" description:"id of a telegram file to download"`
	FilesDir string   `long:"files-dir" env:"FILES_DIR" default:"./" description:"directory for downloaded files"`
	Commands []string `long:"command" description:"bot command to register as name=description, can be repeated"`

	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"log level"`
	SentryDSN string `long:"sentry-dsn" env:"SENTRY_DSN" description:"report errors to sentry"`
}

var Revision = "dev"

func main() {
	var opts options
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	level, err := logger.ParseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsing log level:", err)
		os.Exit(1)
	}

	log := logger.NewLogger(os.Stderr, level)

	if opts.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN, Release: Revision})
		if err != nil {
			log.Error("initializing sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)

		log = logger.WithSentry(log, sentry.CurrentHub())
	}

	log.Debug("starting relay", "revision", Revision)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bot := &telegram.Client{
		Log:      log,
		APIToken: opts.TelegramAPIToken,
	}

	err = bot.Start(ctx)
	if err != nil {
		log.Error("starting bot", "error", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	d := &dispatcher.Dispatcher{
		Log:      log,
		Sender:   bot,
		FilesDir: opts.FilesDir,
	}

	run(ctx, opts, d, bot)
}

func run(ctx context.Context, opts options, d *dispatcher.Dispatcher, bot *telegram.Client) {
	log := d.Log

	if len(opts.Commands) > 0 {
		commands, err := parseCommands(opts.Commands)
		if err != nil {
			log.Error("parsing commands", "error", err)
		} else if err := bot.SetCommands(ctx, commands); err != nil {
			log.Error("setting commands", "error", err)
		} else {
			log.Info("commands set", "count", len(commands))
		}
	}

	updates, err := d.Poll(ctx, e.Cursor(opts.Updates))
	if err != nil {
		log.Error("polling updates", "error", err)
	}
	for _, u := range updates {
		log.Info("update", "raw", string(u))
	}

	if opts.Fetch != "" {
		name, err := d.Fetch(ctx, opts.ChatID, opts.Fetch)
		if err != nil {
			log.Error("fetching file", "file_id", opts.Fetch, "error", err)
		} else {
			fmt.Println(name)
		}
	}

	batches := []struct {
		kind  e.MediaKind
		paths []string
	}{
		{e.MediaKindImage, opts.Images},
		{e.MediaKindVideo, opts.Videos},
		{e.MediaKindAudio, opts.Audios},
		{e.MediaKindDocument, opts.Documents},
		{e.MediaKindAnimation, opts.Animations},
		{e.MediaKindFile, opts.Files},
	}

	var sent bool
	for _, b := range batches {
		if len(b.paths) == 0 {
			continue
		}
		sent = true

		rep := d.DeliverFiles(ctx, opts.ChatID, b.kind, b.paths, opts.Message)
		log.Info("media delivered", "kind", b.kind, "sent", rep.Sent, "failed", rep.Failed)
	}

	if sent || opts.Message == "" {
		return
	}

	rep, err := d.DeliverText(ctx, opts.ChatID, opts.Message)
	if err != nil {
		log.Error("sending message", "error", err)
		return
	}
	log.Info("message delivered", "sent", rep.Sent, "failed", rep.Failed)
}

// parseCommands turns name=description pairs into bot commands
func parseCommands(raw []string) ([]e.Command, error) {
	commands := make([]e.Command, 0, len(raw))
	for _, r := range raw {
		name, description, ok := strings.Cut(r, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), "/")
		if !ok || name == "" || strings.TrimSpace(description) == "" {
			return nil, fmt.Errorf("invalid command %q, expected name=description", r)
		}
		commands = append(commands, e.Command{Name: name, Description: strings.TrimSpace(description)})
	}
	return commands, nil
}
