package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/claude/healthbridge/internal/config"
	"github.com/claude/healthbridge/internal/mcp"
	"github.com/claude/healthbridge/internal/reader"
	"github.com/claude/healthbridge/internal/source"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (local mode)")
	serverURL := flag.String("server", "", "healthbridge server URL for remote mode (e.g. https://healthbridge.tail1234.ts.net)")
	days := flag.Int("days", 7, "default number of days for tool calls in remote mode")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("healthbridge-mcp", Version)
		return
	}

	_ = godotenv.Load()

	// stdout carries the MCP protocol; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var ds mcp.DataSource
	defaultDays := *days

	if *serverURL != "" {
		ds = mcp.NewHTTPClient(*serverURL)
		log.Info("remote mode", "server", *serverURL)
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		src, closeSource, err := source.Open(context.Background(), cfg, false, log)
		if err != nil {
			log.Error("failed to open source", "driver", cfg.Source.Driver, "error", err)
			os.Exit(1)
		}
		defer closeSource()

		loc, err := cfg.Reader.Location()
		if err != nil {
			log.Error("invalid timezone", "error", err)
			os.Exit(1)
		}
		ds = reader.New(src, loc, log)
		defaultDays = cfg.Reader.DefaultDays
		log.Info("local mode", "driver", cfg.Source.Driver)
	}

	if err := mcpserver.ServeStdio(mcp.New(ds, Version, defaultDays, log)); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
