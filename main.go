package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/painterbot/internal/config"
	"github.com/dmorgan81/painterbot/internal/handle"
	"github.com/dmorgan81/painterbot/internal/inject"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/samber/do"
)

func main() {
	logger := log.New(os.Stderr, log.ParseLevel(os.Getenv("LOG_LEVEL")))
	ctx := log.NewContext(context.Background(), logger)
	injector := inject.Setup(ctx, os.Getenv)
	shutdown := func() { _ = injector.Shutdown() }

	if _, err := do.Invoke[config.Config](injector); err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	switch os.Getenv("HANDLER") {
	case "html":
		handler := do.MustInvoke[*handle.HtmlHandler](injector)
		lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(shutdown))
	case "feed":
		handler := do.MustInvoke[*handle.FeedHandler](injector)
		lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(shutdown))
	case "serve":
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		defer shutdown()

		addr := os.Getenv("ADDR")
		if addr == "" {
			addr = ":8080"
		}
		if err := do.MustInvoke[*handle.Server](injector).ListenAndServe(ctx, addr); err != nil {
			logger.Error("serving", "error", err)
		}
	default:
		handler := do.MustInvoke[*handle.GenerateHandler](injector)
		lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(shutdown))
	}
}
