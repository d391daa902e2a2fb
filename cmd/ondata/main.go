package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hongminglow/ondata-be/internal/client"
	"github.com/hongminglow/ondata-be/internal/client/cli"
	"github.com/hongminglow/ondata-be/internal/client/session"
)

func main() {
	_ = godotenv.Load()

	defaultAPI := os.Getenv("ONDATA_API_URL")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:3000"
	}
	defaultSession, err := session.DefaultPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	apiURL := flag.String("api", defaultAPI, "OnData API base URL")
	sessionPath := flag.String("session", defaultSession, "session file path")
	timeout := flag.Duration("timeout", 10*time.Second, "HTTP request timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(*apiURL, client.NewDefaultHTTPClient(*timeout))
	app := cli.NewApp(api, session.NewStore(*sessionPath), os.Stdin, os.Stdout)

	err = app.Run(ctx, flag.Args())
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return
	case errors.Is(err, cli.ErrUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
