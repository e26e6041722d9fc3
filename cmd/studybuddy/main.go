package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/brainstormbuddy/studybuddy/internal/config"
	"github.com/brainstormbuddy/studybuddy/internal/review"
	"github.com/brainstormbuddy/studybuddy/internal/storage"
	"github.com/brainstormbuddy/studybuddy/internal/sync"
	"github.com/brainstormbuddy/studybuddy/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("studybuddy failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("studybuddy", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	addSource := flags.String("add-source", "", "Add a local directory or git URL as a deck source")
	username := flags.String("user", "", "Owner of sources added with --add-source; created if missing")
	runSync := flags.Bool("sync", false, "Sync all sources and exit")
	serve := flags.Bool("serve", false, "Start the HTTP API")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := sync.New(db, cfg.ReposDir)

	if *addSource != "" {
		if *username == "" {
			return errors.New("--add-source requires --user")
		}
		user, err := db.FindUserByName(ctx, *username)
		if err != nil {
			return err
		}
		if user == nil {
			if user, err = db.CreateUser(ctx, *username); err != nil {
				return err
			}
			slog.Info("user created", "username", user.Username, "id", user.ID)
		}
		if _, err := syncer.AddSource(ctx, user.ID, *addSource); err != nil {
			return err
		}
	}

	if *runSync {
		report, err := syncer.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d sources: %d decks, %d new cards, %d deleted cards, %d errors.\n",
			report.Sources, report.Decks, report.NewCards, report.DeletedCards, len(report.Errors))
		for _, e := range report.Errors {
			fmt.Printf("- %s\n", e)
		}
	}

	if !*serve {
		if *addSource == "" && !*runSync {
			flags.Usage()
		}
		return nil
	}

	sessions := review.NewManager(db, nil, cfg.MaxSessionCards)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.NewServer(db, sessions, syncer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
