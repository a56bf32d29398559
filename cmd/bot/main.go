package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crmbot/internal/app"
	"crmbot/internal/config"
)

func main() {
	var (
		cfgPath  string
		envPath  string
		seedPath string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&envPath, "env", ".env", "dotenv file with secret overrides (optional)")
	flag.StringVar(&seedPath, "seed", "", "load a CRM fixture (yaml) into storage and exit")
	flag.Parse()

	if err := config.LoadDotEnv(envPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal: load env:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if seedPath != "" {
		_, err := a.Seed(ctx, seedPath)
		_ = a.Stop(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal seed:", err)
			os.Exit(1)
		}
		return
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background())
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	stopErr := a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if stopErr != nil {
		fmt.Fprintln(os.Stderr, "stop:", stopErr)
	}
}
