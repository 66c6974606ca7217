package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/mdsurface"
	"pkt.systems/mdsurface/httpapi"
	"pkt.systems/mdsurface/internal/appconfig"
	"pkt.systems/mdsurface/internal/host"
	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

type serveFlags struct {
	cfgPath  string
	addr     string
	theme    string
	noWatch  bool
	openPage bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve <file.md>",
		Short: "Serve a markdown document to the browser surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			if err := applyServeFlags(&cfg, flags); err != nil {
				return err
			}
			ctx := cmd.Context()
			if logger, ok := configuredLogger(cfg.Logging.Level); ok {
				ctx = pslog.ContextWithLogger(ctx, logger)
			}
			logger := pslog.Ctx(ctx)

			document, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			opener := host.SystemOpener{}
			server, err := mdsurface.New(mdsurface.ConfigFromApp(cfg, document), mdsurface.ServerDeps{
				Opener: opener,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			url := httpapi.PublicURL(server.Addr(), cfg.HTTP.BasePath)
			logger.Info("http server listening", "addr", server.Addr(), "url", url)
			if flags.openPage {
				if err := opener.OpenExternal(ctx, url); err != nil {
					logger.Warn("browser open failed", "url", url, "err", err)
				}
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().StringVar(&flags.theme, "theme", "", "surface theme (overrides editor.theme)")
	cmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "do not watch the file for external changes")
	cmd.Flags().BoolVar(&flags.openPage, "open", false, "open the surface in the default browser")
	return cmd
}

func applyServeFlags(cfg *appconfig.Config, flags serveFlags) error {
	if addr := strings.TrimSpace(flags.addr); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if theme := strings.TrimSpace(flags.theme); theme != "" {
		normalized, ok := schema.NormalizeThemeName(theme)
		if !ok {
			return fmt.Errorf("%w: %q", schema.ErrUnknownTheme, theme)
		}
		cfg.Editor.Theme = string(normalized)
	}
	if flags.noWatch {
		cfg.Watch.Enabled = false
	}
	return nil
}

func configuredLogger(level string) (pslog.Logger, bool) {
	opts := pslog.Options{Mode: pslog.ModeConsole}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		opts.MinLevel = pslog.TraceLevel
	case "debug":
		opts.MinLevel = pslog.DebugLevel
	case "info":
		opts.MinLevel = pslog.InfoLevel
	case "warn", "warning":
		opts.MinLevel = pslog.WarnLevel
	case "error":
		opts.MinLevel = pslog.ErrorLevel
	default:
		return nil, false
	}
	return pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(opts),
	), true
}
