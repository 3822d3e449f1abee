/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command msglimit-server serves an HTTP API that admits chat messages
// within a sliding window rate limit per chat.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acronis/go-msglimit/internal/libinfo"
	"github.com/acronis/go-msglimit/log"
	"github.com/acronis/go-msglimit/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	rootCmd := &cobra.Command{
		Use:           "msglimit-server",
		Short:         "HTTP server limiting the rate of chat messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), cfgPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"path to the YAML config file (MSGLIMIT_* environment variables are used as well)")
	rootCmd.AddCommand(newVersionCmd(), newCheckConfigCmd(&cfgPath))
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), libinfo.GetLibVersion())
		},
	}
}

func newCheckConfigCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration without starting the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(*cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config is valid: %d messages per %s, max %d chats\n",
				cfg.MsgLimit.MaxMessages, cfg.MsgLimit.CountDuration, cfg.Limiter.MaxKeys)
			return nil
		},
	}
}

func runServer(ctx context.Context, cfgPath string) error {
	cfg, err := loadAppConfig(cfgPath)
	if err != nil {
		return err
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	a, err := newApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	logger.Info("starting msglimit server",
		log.String("version", libinfo.GetLibVersion()),
		log.Int("max_messages", cfg.MsgLimit.MaxMessages),
		log.String("count_duration", cfg.MsgLimit.CountDuration.String()),
	)
	return service.New(logger, a).Run(ctx)
}
