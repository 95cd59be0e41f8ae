package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/parleyhq/parley/pkg/chats/chat"
	"github.com/parleyhq/parley/pkg/chats/message"
	"github.com/parleyhq/parley/pkg/chats/role"
	"github.com/parleyhq/parley/pkg/engine"
	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/rs/zerolog"
)

const defaultConfigPath = "parley.yaml"

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "init" {
		initCmd := flag.NewFlagSet("init", flag.ExitOnError)
		initCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: parley init [flags]\n\nCreate a parley.yaml config interactively.\n\nFlags:\n")
			initCmd.PrintDefaults()
		}
		out := initCmd.String("config", defaultConfigPath, "path to write the configuration file")
		_ = initCmd.Parse(os.Args[2:])

		if err := runInit(*out); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: parley [flags]\n       parley <command> [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  init    Create a parley.yaml config interactively\n")
	}

	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	providerName := flag.String("provider", "", "provider to use (overrides default_provider in config)")
	prompt := flag.String("p", "", "one-shot prompt: print the reply and exit instead of starting the chat UI")
	systemPrompt := flag.String("system", "", "system prompt prepended to the conversation")
	verbose := flag.Bool("verbose", false, "log request diagnostics to stderr")
	flag.Parse()

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, *providerName, *systemPrompt, *prompt, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	configYAML, err := runWizard()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, configYAML, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)

	return nil
}

func run(configPath, providerName, systemPrompt, prompt string, verbose bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := engine.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := zerolog.Nop()
	if verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}

	var completer modeladapter.Completer
	if providerName != "" {
		completer, err = eng.Completer(providerName)
	} else {
		providerName = eng.DefaultName()
		completer, err = eng.Default()
	}
	if err != nil {
		return err
	}

	conversation := chat.New()
	if systemPrompt != "" {
		conversation.Append(message.New("system", role.System, systemPrompt))
	}

	if prompt != "" {
		return runOneShot(ctx, completer, conversation, prompt, verbose)
	}

	model := newAppModel(ctx, completer, providerName, conversation)

	p := tea.NewProgram(model, tea.WithContext(ctx))

	_, err = p.Run()
	return err
}

// runOneShot sends a single prompt and prints the rendered reply to stdout.
func runOneShot(ctx context.Context, completer modeladapter.Completer, conversation *chat.Chat, prompt string, verbose bool) error {
	conversation.Append(message.New("you", role.User, prompt))

	start := time.Now()

	cpl, err := completer.Complete(ctx, conversation)
	if err != nil {
		return err
	}

	initMarkdownRenderer(100)
	fmt.Println(renderMarkdown(cpl.Text()))

	if verbose {
		fmt.Fprintf(os.Stderr, "tokens: ↑%s ↓%s · %s\n",
			fmtTokens(cpl.Usage.InputTokens),
			fmtTokens(cpl.Usage.OutputTokens),
			fmtDuration(time.Since(start)),
		)
	}

	return nil
}
