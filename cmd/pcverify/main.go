package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spacemeshos/packetcrypt/config"
	"github.com/spacemeshos/packetcrypt/logging"
	"github.com/spacemeshos/packetcrypt/store"
	"github.com/spacemeshos/packetcrypt/verifier"
)

// Binary version.
// It should be passed during the build with '-ldflags "-X main.version="'.
var version = "unknown"

// errRejected is returned when at least one checked item is not valid.
var errRejected = errors.New("rejected")

// pcverifyMain is the true entry point. This function is required since
// defers created in the top-level scope of a main method aren't executed if
// os.Exit() is called.
func pcverifyMain() error {
	var err error
	cfg := config.DefaultConfig()
	// Pre-parse the command line to check for an alternative config file.
	cfg, err = config.ParseFlags(cfg)
	if err != nil {
		return err
	}
	cfg, err = config.ReadConfigFile(cfg, logging.New(logging.Level(cfg.DebugLog), "", cfg.JSONLog))
	if err != nil {
		return err
	}
	cfg, err = config.SetupConfig(cfg)
	if err != nil {
		return err
	}
	// Parse the command line again so that it takes precedence.
	cfg, err = config.ParseFlags(cfg)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Level(cfg.DebugLog), filepath.Join(cfg.LogDir, "pcverify.log"), cfg.JSONLog).
		With(zap.Stringer("run_id", uuid.New()))
	defer logger.Sync() //nolint:errcheck
	ctx := logging.NewContext(context.Background(), logger)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	logger.Sugar().Debugf("version: %s, dir: %v, datadir: %v, pcp: %d", version, cfg.BaseDir, cfg.DataDir, cfg.Protocol)

	if cfg.MetricsAddr != nil {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr.String(),
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", zap.Stringer("address", cfg.MetricsAddr))
	}

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	cmd := &command{cfg: cfg, store: db}
	switch cfg.Args.Command {
	case "import-headers":
		return cmd.importHeaders(ctx, cfg.Args.Files)
	case "ann", "block":
		v, err := verifier.New(db, *cfg.Verifier)
		if err != nil {
			return err
		}
		cmd.verifier = v
		if cfg.Args.Command == "ann" {
			return cmd.checkAnnouncements(ctx, cfg.Args.Files)
		}
		return cmd.checkBlocks(ctx, cfg.Args.Files)
	case "":
		return errors.New("missing command: expected ann, block or import-headers")
	default:
		return fmt.Errorf("unknown command %q", cfg.Args.Command)
	}
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := pcverifyMain(); err != nil {
		// If it's the flag utility error don't print it,
		// because it was already printed.
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
