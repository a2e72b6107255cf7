package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nextstep-health/nextstep-voice/internal/app"
	"github.com/nextstep-health/nextstep-voice/internal/config"
	"github.com/nextstep-health/nextstep-voice/internal/console"
	"github.com/nextstep-health/nextstep-voice/internal/logging"
	"github.com/nextstep-health/nextstep-voice/internal/voice"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nextstep-cli: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("logging init failed: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderer := console.NewRenderer(os.Stdout, false)
	var (
		replyMu   sync.Mutex
		lastReply string
	)
	sink := voice.MultiSink{renderer, voice.SinkFunc(func(ev voice.Event) {
		if ev.Kind == voice.EventAssistantMessage && ev.Message != nil {
			replyMu.Lock()
			lastReply = ev.Message.Text
			replyMu.Unlock()
		}
	})}

	built, err := app.BuildTerminal(ctx, cfg, sink, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	tones, err := voice.LoadTones(cfg.TonesFile)
	if err != nil {
		return err
	}

	fmt.Printf("NextStep voice (%s). Type /help for commands.\n", built.SpeechDetail)
	if !built.Capture {
		fmt.Println("speech capture disabled: set OPENAI_API_KEY to enable the microphone")
	}
	if overview := built.Backend.Overview(ctx); len(overview.Categories) > 0 {
		fmt.Print("categories:")
		for _, c := range overview.Categories {
			fmt.Printf(" %s", c.ID)
		}
		fmt.Println()
	}

	sh := &shell{
		ctrl:  built.Orchestrator,
		tones: tones,
		out:   os.Stdout,
		lastReply: func() string {
			replyMu.Lock()
			defer replyMu.Unlock()
			return lastReply
		},
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !sh.execute(ctx, parseCommand(line)) {
				return nil
			}
		}
	}
}
