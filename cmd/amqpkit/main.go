package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/glimte/amqpkit"
	"github.com/glimte/amqpkit/config"
	rabbitmqTransport "github.com/glimte/amqpkit/transports/rabbitmq"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	gitCommit = "unknown"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	url     string
	verbose bool
	logger  *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "amqpkit",
		Short: "Declare topology, publish and consume on RabbitMQ",
		Long: `amqpkit applies exchange and queue topologies from YAML files and publishes or
consumes messages from the command line.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, gitCommit),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = newLogger(opts.verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.url, "url", "u", config.BrokerURL(), "RabbitMQ connection URL (default from "+config.URLEnv+")")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newDeclareCommand(opts),
		newPublishCommand(opts),
		newGetCommand(opts),
		newConsumeCommand(opts),
	)
	return rootCmd
}

// newLogger writes JSON logs to stderr so message output on stdout stays clean
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("pid", os.Getpid())
}

func (o *globalOptions) connect(ctx context.Context, transportOpts ...rabbitmqTransport.TransportOption) (*amqpkit.Client, error) {
	client, err := amqpkit.NewClientWithOptions(ctx, o.url,
		amqpkit.WithLogger(o.logger),
		amqpkit.WithTransportOptions(transportOpts...),
	)
	if err != nil {
		o.logger.Error("failed to connect", "error", err)
		return nil, err
	}
	return client, nil
}
