// Command relayauth-demo is a terminal client for the relayauth flows. It
// runs the reference backend in-process on an embedded Redis and shows
// outgoing code emails in a dev inbox pane instead of sending them.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/backend"
	"github.com/MrEthical07/relayauth/metrics/export/prometheus"
	"github.com/MrEthical07/relayauth/securestore"
	"github.com/alicebob/miniredis/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		configPath  = flag.String("config", "", "relayauth config file (yaml/json/toml); env RELAYAUTH_* overrides")
		storeDir    = flag.String("store", "", "directory for the encrypted session store; empty keeps sessions in memory")
		passphrase  = flag.String("passphrase", "", "passphrase for the session store when RELAYAUTH_DEMO_KEY is unset")
		dbPath      = flag.String("db", "", "SQLite account database; empty uses an in-memory database")
		logPath     = flag.String("log", "", "write structured logs to this file")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	)
	flag.Parse()

	if err := run(*configPath, *storeDir, *passphrase, *dbPath, *logPath, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "relayauth-demo: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, storeDir, passphrase, dbPath, logPath, metricsAddr string) error {
	ctx := context.Background()

	logger := slog.New(slog.DiscardHandler)
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cfg, err := relayauth.LoadConfig(configPath)
	if err != nil {
		return err
	}

	mr, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("start embedded redis: %w", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// The program does not exist until the model is built; messages sent
	// before that are dropped.
	var program atomic.Pointer[tea.Program]
	send := func(msg tea.Msg) {
		if p := program.Load(); p != nil {
			p.Send(msg)
		}
	}

	signingKey := make([]byte, 32)
	if _, err := rand.Read(signingKey); err != nil {
		return err
	}
	b, err := backend.New(ctx, backend.DefaultConfig(), backend.Options{
		DSN:        dbPath,
		Redis:      rdb,
		SigningKey: signingKey,
		Mailer:     backend.NewCaptureMailer(func(m backend.Message) { send(mailMsg(m)) }),
		Logger:     logger.With(slog.String("component", "backend")),
	})
	if err != nil {
		return err
	}
	defer b.Close()

	storage, err := openStorage(ctx, storeDir, passphrase, logger)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
	}
	ctrl, err := relayauth.New().
		WithConfig(cfg).
		WithBackend(b).
		WithStorage(storage).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if metricsAddr != "" {
		ln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", prometheus.New(ctrl).Handler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		defer srv.Close()
	}

	unsubscribe := ctrl.Subscribe(func(t relayauth.Transition) { send(transitionMsg(t)) })
	defer unsubscribe()

	p := tea.NewProgram(newModel(ctrl, b, send), tea.WithAltScreen())
	program.Store(p)
	_, err = p.Run()
	return err
}

// openStorage picks the session store: memory without a directory,
// otherwise an encrypted file store keyed by RELAYAUTH_DEMO_KEY (64 hex
// chars) or, failing that, the passphrase.
func openStorage(ctx context.Context, dir, passphrase string, logger *slog.Logger) (relayauth.SecureStorage, error) {
	if dir == "" {
		return securestore.NewMemory(), nil
	}
	provider := securestore.Unavailable
	if hexKey := os.Getenv("RELAYAUTH_DEMO_KEY"); hexKey != "" {
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("RELAYAUTH_DEMO_KEY: %w", err)
		}
		provider = securestore.StaticKey(key)
	}
	return securestore.Open(ctx, securestore.Options{
		Dir:        dir,
		Provider:   provider,
		Passphrase: []byte(passphrase),
		Logger:     logger,
	})
}
