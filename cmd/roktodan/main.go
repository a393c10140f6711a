package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/roktodanbd/roktodan/internal/backup"
	"github.com/roktodanbd/roktodan/internal/config"
	"github.com/roktodanbd/roktodan/internal/database"
	"github.com/roktodanbd/roktodan/internal/logging"
	"github.com/roktodanbd/roktodan/internal/push"
	"github.com/roktodanbd/roktodan/internal/server"
	"github.com/roktodanbd/roktodan/internal/store"
)

const usage = `usage:
  roktodan                      run the HTTP server
  roktodan vapid-keys           print a new VAPID key pair
  roktodan restore <id> <path>  download and decrypt backup <id> into <path>
  roktodan grant-admin <login>  give the account with this email or phone admin rights
  roktodan decrypt <src> <dst>  decrypt a downloaded backup file (needs ROKTODAN_BACKUP_PASSPHRASE)`

func main() {
	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	srv.Sweeper().Start(bgCtx)
	srv.BackupManager().Start(bgCtx)

	// No WriteTimeout: /ws connections and backup downloads outlive any
	// fixed deadline.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("roktodan starting", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	srv.Sweeper().Stop()
	srv.BackupManager().Stop()
}

func runCommand(args []string) error {
	switch args[0] {
	case "vapid-keys":
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Printf("ROKTODAN_VAPID_PUBLIC_KEY=%s\nROKTODAN_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return nil

	case "restore":
		if len(args) != 3 {
			return errors.New(usage)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("backup id %q: %w", args[1], err)
		}
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return server.New(db, cfg, logger).BackupManager().Restore(ctx, id, args[2])

	case "grant-admin":
		if len(args) != 2 {
			return errors.New(usage)
		}
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		ctx := context.Background()
		accounts := store.NewAccountStore(db)
		a, err := accounts.GetByLogin(ctx, args[1])
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("no account with login %q", args[1])
		}
		if err := accounts.SetAdmin(ctx, a.ID, true); err != nil {
			return err
		}
		fmt.Printf("account %d (%s) is now an admin\n", a.ID, a.Email)
		return nil

	case "decrypt":
		if len(args) != 3 {
			return errors.New(usage)
		}
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		if cfg.BackupPassphrase == "" {
			return errors.New("ROKTODAN_BACKUP_PASSPHRASE is not set")
		}
		return backup.DecryptFile(args[1], args[2], cfg.BackupPassphrase)

	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", args[0], usage)
}
