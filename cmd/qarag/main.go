// Command qarag builds a Q&A vector collection and answers questions from it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qarag/internal/config"
	"qarag/internal/log"
)

// Set via -ldflags at release time.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfgPath  string
	logLevel string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "qarag",
		Short:         "Retrieval-augmented question answering over Q&A collections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml, then ~/.config/qarag/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.AddCommand(
		newBuildCmd(),
		newRunAppCmd(),
		newAskCmd(),
		newChatCmd(),
		newInitConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads .env, then the config file, then reconfigures logging
// with the resulting level.
func loadConfig(console bool) (*config.AppConfig, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var (
		cfg  *config.AppConfig
		used = cfgPath
		err  error
	)
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, used, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log.Configure(log.Config{Level: level, Console: console})
	if used != "" {
		logger := log.WithComponent("cli")
		logger.Debug().Str("path", used).Msg("config loaded")
	}
	return cfg, nil
}

func main() {
	log.Configure(log.Config{Level: os.Getenv("LOG_LEVEL"), Console: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
