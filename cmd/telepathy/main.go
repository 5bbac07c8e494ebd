package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thorcore/telepathy/internal/config"
	"github.com/thorcore/telepathy/internal/console"
	"github.com/thorcore/telepathy/internal/data"
	"github.com/thorcore/telepathy/internal/metric"
	telenet "github.com/thorcore/telepathy/internal/net"
	"github.com/thorcore/telepathy/internal/scripting"
	"github.com/thorcore/telepathy/internal/wire"
)

const defaultConfigPath = "config/telepathy.toml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func run() error {
	fset := flag.NewFlagSet("telepathy", flag.ExitOnError)
	cfgFlag := fset.String("config", "", "TOML config file (default $TELEPATHY_CONFIG or "+defaultConfigPath+")")
	addrFlag := fset.String("a", "", "peer address, overrides connection.address")
	portFlag := fset.Int("p", 0, "peer port, overrides connection.port")
	retryFlag := fset.Float64("d", 0, "seconds between connection attempts, overrides connection.retry_delay")
	verbose := fset.Bool("v", false, "debug logging: every frame with its raw bytes")
	_ = fset.Parse(os.Args[1:])

	// 1. Load config
	cfg, err := loadConfig(*cfgFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addrFlag != "" {
		cfg.Connection.Address = *addrFlag
	}
	if *portFlag != 0 {
		cfg.Connection.Port = *portFlag
	}
	if *retryFlag > 0 {
		cfg.Connection.RetryDelay = time.Duration(*retryFlag * float64(time.Second))
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Framing, metrics, session
	charset, err := wire.LookupCharset(cfg.Framing.StringCharset)
	if err != nil {
		return fmt.Errorf("charset: %w", err)
	}

	metrics := metric.New()
	if cfg.Metrics.Address != "" {
		reg, err := metric.NewRegistry(metrics)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		srv := &http.Server{Addr: cfg.Metrics.Address, Handler: metric.Handler(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
		log.Info("metrics endpoint", zap.String("addr", cfg.Metrics.Address))
	}

	sess := telenet.NewSession(telenet.Config{
		ConnectTimeout:    cfg.Connection.ConnectTimeout,
		KeepAliveInterval: cfg.Connection.KeepAliveInterval,
		PollInterval:      cfg.Connection.PollInterval,
		WriteTimeout:      cfg.Connection.WriteTimeout,
		ZeroLimit:         cfg.Framing.GarbageZeroLimit,
		Charset:           charset,
	}, log, telenet.WithMetrics(metrics))

	// 4. Listeners
	lost := make(chan struct{}, 1)
	sess.OnDisconnected(func() {
		select {
		case lost <- struct{}{}:
		default:
		}
	})

	var dash *console.Dashboard
	if cfg.Display.Enabled {
		var profiles *data.ProfileTable
		if cfg.Display.Profile != "" {
			profiles, err = data.LoadProfileTable(cfg.Display.Profile)
			if err != nil {
				return fmt.Errorf("display profile: %w", err)
			}
		}
		dash = console.New(profiles, cfg.Display.History)
		sess.OnMessage(dash.Update)
		sess.OnDisconnected(func() { dash.SetConnected(false) })
		printOK(fmt.Sprintf("dashboard (%d profiled keys)", profiles.Count()))
	} else {
		sess.OnMessage(func(msg wire.Message) {
			log.Info("message", zap.String("key", msg.Key), zap.Stringer("value", msg.Value))
		})
	}

	if cfg.Scripting.Dir != "" {
		engine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer engine.Close()
		sess.OnMessage(engine.HandleMessage)
		sess.OnDisconnected(engine.HandleDisconnect)
		printOK("lua hooks loaded from " + cfg.Scripting.Dir)
	}

	// 5. Connect with retry until a shutdown signal arrives
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		connectLoop(ctx, sess, cfg.Connection, dash, lost, log)
	}()

	var tick <-chan time.Time
	if dash != nil {
		ticker := time.NewTicker(cfg.Display.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
		printSection("Telepathy")
		printOK(fmt.Sprintf("peer %s:%d", cfg.Connection.Address, cfg.Connection.Port))
	}

	for {
		select {
		case <-tick:
			fmt.Print("\033[H\033[2J")
			if err := dash.Render(os.Stdout); err != nil {
				log.Warn("render dashboard", zap.Error(err))
			}
		case sig := <-shutdownCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			cancel()
			<-connDone
			sess.Close()
			sess.Wait()
			return nil
		}
	}
}

// connectLoop keeps one link open. After a failed attempt or a lost peer it
// waits RetryDelay before dialing again.
func connectLoop(ctx context.Context, sess *telenet.Session, cfg config.ConnectionConfig, dash *console.Dashboard, lost <-chan struct{}, log *zap.Logger) {
	for {
		select {
		case <-lost:
		default:
		}
		err := sess.Open(ctx, cfg.Address, cfg.Port)
		switch {
		case err == nil:
			if dash != nil {
				dash.SetConnected(true)
			}
			select {
			case <-lost:
			case <-ctx.Done():
				return
			}
		case errors.Is(err, telenet.ErrSessionActive):
			// Previous link still tearing down.
		default:
			log.Error("connect failed", zap.Error(err), zap.Duration("retry_in", cfg.RetryDelay))
		}

		select {
		case <-time.After(cfg.RetryDelay):
		case <-ctx.Done():
			return
		}
	}
}

// loadConfig resolves the config path from the flag, then
// $TELEPATHY_CONFIG, then the default path. Only a missing default file
// falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("TELEPATHY_CONFIG")
	}
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(defaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
