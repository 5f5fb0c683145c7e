package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lignyxg/linechat/internal/chat"
)

func main() {
	addr := flag.String("addr", chat.DefaultAddr, "chat listen address")
	metricsAddr := flag.String("metrics-addr", ":9090", "metrics listen address")
	capacity := flag.Int("capacity", chat.DefaultSinkCapacity, "pending messages buffered per peer")
	maxLine := flag.Int("max-line", chat.DefaultMaxLineLen, "maximum inbound line length in bytes")
	retryBudget := flag.Int("retry-budget", 0, "extra enqueue attempts before a peer counts as slow")
	fabric := flag.String("fabric", string(chat.FabricMailbox), "broadcast fabric: mailbox or bus")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	srv := chat.NewServer(chat.Config{
		Addr:         *addr,
		SinkCapacity: *capacity,
		MaxLineLen:   *maxLine,
		RetryBudget:  *retryBudget,
		Fabric:       chat.FabricKind(*fabric),
	}, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			logger.Error("metrics listener stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	srv.Stop()
}
