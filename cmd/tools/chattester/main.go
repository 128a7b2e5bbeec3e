// chattester drives a chat widget in process against the configured
// backend, for checking credentials and persona prompts from a terminal.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/consultationhouse/site/backend/internal/config"
	"github.com/consultationhouse/site/backend/internal/model/persona"
	"github.com/consultationhouse/site/backend/internal/service/ai"
	"github.com/consultationhouse/site/backend/internal/service/widget"
)

type options struct {
	personaID string
	timeout   time.Duration
	stateless bool
	verbose   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "chattester",
		Short:         "Talk to the chat widget backend from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if opts.verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().StringVar(&opts.personaID, "persona", "", "persona id (default persona when empty)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 45*time.Second, "per-message timeout")
	root.PersistentFlags().BoolVar(&opts.stateless, "stateless", false, "skip opening the widget so every send is a one-shot request")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newSendCmd(opts), newReplCmd(opts))
	return root
}

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return sendAndPrint(cmd.Context(), cmd.OutOrStdout(), manager, strings.Join(args, " "), opts.timeout)
		},
	}
}

func newReplCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat interactively; an empty line or EOF exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), manager, opts.timeout)
		},
	}
}

func newManager(ctx context.Context, opts *options) (*widget.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}

	personas, err := persona.LoadStore(cfg.Persona.File)
	if err != nil {
		return nil, err
	}

	p := personas.Default()
	if opts.personaID != "" {
		found, ok := personas.FindByID(opts.personaID)
		if !ok {
			return nil, errors.Errorf("persona %q not found", opts.personaID)
		}
		p = found
	}

	factory, err := ai.NewClientFactory(cfg.AI)
	if err != nil {
		return nil, err
	}

	manager := widget.New(p, factory, widget.WithModel(cfg.AI.ModelName()), widget.WithLogger(log.Logger))
	if !opts.stateless {
		manager.Open(ctx)
		log.Debug().Str("state", manager.State().String()).Msg("widget opened")
	}
	return manager, nil
}

func sendAndPrint(ctx context.Context, out io.Writer, manager *widget.Manager, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	exchange, err := manager.Send(ctx, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n(%s, %s)\n", exchange.Reply.Text, manager.State(), time.Since(start).Round(time.Millisecond))
	return nil
}

func repl(ctx context.Context, in io.Reader, out io.Writer, manager *widget.Manager, timeout time.Duration) error {
	for _, msg := range manager.Messages() {
		fmt.Fprintf(out, "%s> %s\n", msg.Sender, msg.Text)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "user> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			return nil
		}
		if err := sendAndPrint(ctx, out, manager, text, timeout); err != nil {
			return err
		}
	}
}
