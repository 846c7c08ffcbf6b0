package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pokeescape/pokeescape-server/internal/app"
	"github.com/pokeescape/pokeescape-server/internal/config"
	"github.com/pokeescape/pokeescape-server/internal/log"
	"github.com/pokeescape/pokeescape-server/internal/proto"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:           "pokeescape-server",
		Short:         "PokeEscape game session server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, configPath)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to server config file (yaml)")
	flags.String("host", defaults.Host, "listen host")
	flags.IntP("port", "p", defaults.Port, "listen port")
	flags.IntP("threads", "t", defaults.Threads, "worker threads, one per concurrent connection")
	flags.StringP("maps", "m", defaults.Maps, "map catalog file")
	flags.String("log-level", defaults.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.BoolP("verbose", "v", defaults.Verbose, "debug logging")
	flags.Duration("handshake-timeout", defaults.HandshakeTimeout, "deadline for the first line of a connection (0 disables)")
	flags.Duration("idle-timeout", defaults.IdleTimeout, "per-command read deadline for sessions (0 disables)")
	flags.Duration("read-header-timeout", defaults.ReadHeaderTimeout, "HTTP read header timeout")
	flags.Duration("shutdown-timeout", defaults.ShutdownTimeout, "graceful shutdown timeout")
	flags.Bool("close-on-disconnect", defaults.CloseOnDisconnect, "unregister clients whose connection drops without quit")

	cmd.AddCommand(versionCmd())
	return cmd
}

func serve(cmd *cobra.Command, configPath string) error {
	bootLogger := log.New("info")
	cfg, resolvedPath, err := config.Load(bootLogger, configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.New(cfg.Level())
	logger.Info().Str("config", resolvedPath).Str("level", cfg.Level()).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("version", proto.ServerVersion).
		Int("threads", cfg.Threads).
		Msg("starting pokeescape server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server and protocol versions",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "server %s\nmax client protocol %s\n", proto.ServerVersion, proto.MaxClientVersion)
		},
	}
}
