// Command mailctl is the operator CLI for the mail relay: one-off and bulk
// sends, provider registry management, schema migrations and SMTP smoke tests.
//
// Usage:
//
//	mailctl send --to user@example.com --subject "Hi" --html-file body.html
//	mailctl bulk --csv recipients.csv --subject "Hi {{name}}" --html-file body.html
//	mailctl providers add brevo --type brevo --cred api_key=xkeysib-...
//	mailctl migrate up
//	mailctl smtp-test --key $KEY --from app@example.com --to me@example.com
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sungwon/mailrelay/internal/config"
	"github.com/sungwon/mailrelay/internal/logger"
)

type globalFlags struct {
	configDir string
	envFile   string
	verbose   bool
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	flags globalFlags
	cfg   *config.Config
	log   zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "mailctl",
		Short:         "Operate the provider-rotation mail relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config", "config", "directory containing config.yaml")
	pf.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file with provider credentials")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newSendCmd(a),
		newBulkCmd(a),
		newStatusCmd(a),
		newProvidersCmd(a),
		newMigrateCmd(a),
		newSMTPTestCmd(a),
		newAPIKeyCmd(),
	)
	return root
}

// init loads the dotenv file, configuration and logger.
func (a *app) init() error {
	if err := godotenv.Load(a.flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.flags.envFile, err)
	}

	cfg, err := config.Load(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	level := "warn"
	if a.flags.verbose {
		level = "debug"
	}
	a.log = logger.New(logger.Options{Level: level, Format: "console", Output: "stderr"})
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
