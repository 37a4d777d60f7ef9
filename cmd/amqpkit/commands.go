package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/glimte/amqpkit/config"
	"github.com/glimte/amqpkit/contracts"
	"github.com/glimte/amqpkit/interceptors"
	rabbitmqTransport "github.com/glimte/amqpkit/transports/rabbitmq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newDeclareCommand(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "declare",
		Short: "Apply a topology file",
		Long:  "Declare the exchanges and queues of a YAML topology file and create their bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			topology, err := config.Load(file)
			if err != nil {
				return err
			}

			client, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			return client.ApplyTopology(cmd.Context(), topology)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "topology.yaml", "Topology file")
	return cmd
}

func newPublishCommand(opts *globalOptions) *cobra.Command {
	var (
		exchange   string
		routingKey string
		headers    []string
		flags      contracts.PublishFlags
		confirm    bool
	)

	cmd := &cobra.Command{
		Use:   "publish <body>",
		Short: "Publish one message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			client, err := opts.connect(cmd.Context(), rabbitmqTransport.WithConfirms(confirm))
			if err != nil {
				return err
			}
			defer client.Close()

			pkg := contracts.NewOutboundPackage([]byte(args[0]), contracts.NewDestination(exchange, routingKey))
			pkg.PublishFlags = flags
			pkg.Headers = parsed

			if err := client.Producer().ProduceOne(cmd.Context(), pkg); err != nil {
				return err
			}
			opts.logger.Info("message published", "exchange", exchange, "routingKey", routingKey)
			return nil
		},
	}

	cmd.Flags().StringVarP(&exchange, "exchange", "e", "", "Target exchange (empty for the default exchange)")
	cmd.Flags().StringVarP(&routingKey, "routing-key", "k", "", "Routing key")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Message header as key=value (repeatable)")
	cmd.Flags().BoolVar(&flags.Persist, "persist", false, "Persist the message")
	cmd.Flags().BoolVar(&flags.Mandatory, "mandatory", false, "Return the message if it cannot be routed")
	cmd.Flags().BoolVar(&confirm, "confirm", true, "Wait for the broker to confirm the message")
	return cmd
}

func newGetCommand(opts *globalOptions) *cobra.Command {
	var requeue bool

	cmd := &cobra.Command{
		Use:   "get <queue>",
		Short: "Fetch one message and acknowledge it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			pkg, ok, err := client.Consumer().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "queue %s is empty\n", args[0])
				return nil
			}

			printPackage(cmd.OutOrStdout(), args[0], pkg)
			if requeue {
				return pkg.Nack(contracts.Requeue())
			}
			return pkg.Ack()
		},
	}

	cmd.Flags().BoolVar(&requeue, "requeue", false, "Put the message back instead of acknowledging it")
	return cmd
}

func newConsumeCommand(opts *globalOptions) *cobra.Command {
	var (
		prefetch    int
		concurrency int
		filters     []string
		onSkip      string
	)

	cmd := &cobra.Command{
		Use:   "consume <queue>...",
		Short: "Print messages from queues until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := parseHeaders(filters)
			if err != nil {
				return err
			}
			skip, err := parseSkipBehavior(onSkip)
			if err != nil {
				return err
			}

			client, err := opts.connect(cmd.Context(),
				rabbitmqTransport.WithPrefetch(prefetch),
				rabbitmqTransport.WithConcurrency(concurrency),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			var mu sync.Mutex
			out := cmd.OutOrStdout()

			chain := interceptors.NewInterceptorChain(opts.logger).
				Add(interceptors.NewLoggingInterceptor(opts.logger))
			if len(match) > 0 {
				chain.Add(interceptors.NewFilteringInterceptor(interceptors.HeaderFilter(match), skip))
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			for _, queue := range args {
				queue := queue
				handler := chain.Wrap(func(_ context.Context, pkg contracts.InboundPackage) contracts.AckMode {
					mu.Lock()
					defer mu.Unlock()
					printPackage(out, queue, pkg)
					return contracts.Ack{}
				})
				g.Go(func() error {
					return client.Consume(ctx, queue, handler)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().IntVar(&prefetch, "prefetch", 10, "Messages the broker may deliver ahead of acknowledgment")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Handlers per queue running at once")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Only print messages carrying this header as key=value (repeatable)")
	cmd.Flags().StringVar(&onSkip, "on-skip", "ack", "What to do with filtered messages: ack, requeue or dead-letter")
	return cmd
}

// parseHeaders turns key=value pairs into a header map
func parseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q: expected key=value", pair)
		}
		headers[key] = value
	}
	return headers, nil
}

func parseSkipBehavior(value string) (interceptors.SkipBehavior, error) {
	switch value {
	case "ack":
		return interceptors.SkipAck, nil
	case "requeue":
		return interceptors.SkipRequeue, nil
	case "dead-letter":
		return interceptors.SkipDeadLetter, nil
	}
	return 0, fmt.Errorf("invalid --on-skip %q: expected ack, requeue or dead-letter", value)
}

func printPackage(w io.Writer, queue string, pkg contracts.InboundPackage) {
	headers := pkg.Headers()
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "[%s] id=%s\n", queue, pkg.ID())
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, headers[k])
	}
	fmt.Fprintf(w, "  %s\n", pkg.Content())
}
