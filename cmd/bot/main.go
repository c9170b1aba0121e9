package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shiftbot/internal/app"
)

func main() {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", "", "optional config file (json or yaml); environment variables override it")
	flag.StringVar(&envPath, "env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "fatal: load env:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bot, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := bot.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-bot.Done():
	}
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = bot.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		if err := bot.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}
}
