package main

import (
	"context"
	"flag"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kgellert/hodatay-chat/internal/attachments"
	"github.com/kgellert/hodatay-chat/internal/cli"
	"github.com/kgellert/hodatay-chat/internal/config"
	"github.com/kgellert/hodatay-chat/internal/directchat"
	"github.com/kgellert/hodatay-chat/internal/engine"
	"github.com/kgellert/hodatay-chat/internal/hub/auth"
	"github.com/kgellert/hodatay-chat/internal/lib/logger"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/sl"
	"github.com/kgellert/hodatay-chat/internal/notify"
	"github.com/kgellert/hodatay-chat/internal/transport"
)

func main() {
	session := flag.String("session", "", "session token (default from config)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found, skipping...")
	}

	cfg := config.MustLoad()

	// stdout belongs to the REPL
	log := logger.Setup(cfg.Env, os.Stderr)

	if *session == "" {
		*session = cfg.Session
	}
	if *session == "" {
		log.Error("no session, pass -session or set HODATAY_SESSION")
		os.Exit(1)
	}

	selfID := cfg.SelfID
	if selfID == "" {
		id, err := auth.Claims(*session)
		if err != nil {
			log.Error("cannot read user id from session", sl.Err(err))
			os.Exit(1)
		}
		selfID = id.UserID
	}

	log.Info("starting hodatay-chat",
		slog.String("env", cfg.Env),
		slog.String("user_id", selfID),
		slog.String("hub", cfg.Hub.WSURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks notify.Multi
	if cfg.Notifications.Bell {
		sinks = append(sinks, notify.Bell{Out: os.Stdout})
	}
	if cfg.Notifications.Desktop {
		sinks = append(sinks, notify.Desktop{Icon: cfg.Notifications.Icon})
	}
	notifier := notify.NewAsync(sinks, 0, log)
	defer notifier.Close()

	e, err := engine.New(engine.Options{
		Dialer: transport.NewWSDialer(cfg.Hub.WSURL, cfg.Hub.HandshakeTimeout, log),
		Policy: transport.Policy{
			BackoffBase: cfg.Reconnect.BaseDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		SelfID:       selfID,
		TypingIdle:   cfg.Typing.Idle,
		TypingExpiry: cfg.Typing.Expiry,
		OutboxSize:   cfg.Outbox.Size,
		Notifier:     notifier,
		DirectChats:  directchat.New(cfg.Hub.APIURL, *session, cfg.Hub.RequestTimeout),
		Log:          log,
	})
	if err != nil {
		log.Error("failed to init engine", sl.Err(err))
		os.Exit(1)
	}
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go e.Run(loopCtx)
	defer stopLoop()
	defer e.Close()

	uploader := attachments.NewUploader(cfg.Hub.APIURL, *session, cfg.Hub.RequestTimeout)

	repl := cli.New(e, uploader, selfID, os.Stdout)
	defer repl.Subscribe(e)()

	e.Connect(*session)

	if err := repl.Run(ctx, os.Stdin); err != nil {
		log.Error("failed to read input", sl.Err(err))
	}
}
