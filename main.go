package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"soundpairs/internal/blob"
	"soundpairs/internal/httpapi"
	"soundpairs/internal/store"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	addr := flag.String("addr", ":8080", "Echo listen address")
	dbPath := flag.String("db", "soundpairs.db", "SQLite database path")
	blobsDir := flag.String("blobs-dir", "", "Audio blob directory path (defaults to <db-dir>/audio)")
	h3Addr := flag.String("h3", "", "Optional HTTP/3 listen address (UDP), e.g. :8443")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	// Auto-enable debug logging for dev builds; override with -debug flag.
	level := slog.LevelInfo
	if *debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting sync server", "version", Version, "addr", *addr, "db", *dbPath)

	sqliteStore, err := store.Open(*dbPath)
	if err != nil {
		slog.Error("open sqlite store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			slog.Error("close sqlite store", "err", closeErr)
		}
	}()

	blobRoot := strings.TrimSpace(*blobsDir)
	if blobRoot == "" {
		blobRoot = filepath.Join(filepath.Dir(*dbPath), "audio")
	}
	slog.Debug("audio blob store", "dir", blobRoot)

	blobStore, err := blob.NewStore(blobRoot, sqliteStore)
	if err != nil {
		slog.Error("initialize blob store", "err", err)
		os.Exit(1)
	}

	server := httpapi.New(sqliteStore, blobStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	if *h3Addr != "" {
		go func() {
			if err := runHTTP3(ctx, *h3Addr, server); err != nil {
				slog.Error("http3 server error", "err", err)
			}
		}()
	}

	slog.Info("listening", "addr", *addr)
	if err := server.Run(ctx, *addr); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
