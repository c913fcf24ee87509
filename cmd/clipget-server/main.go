package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/guiyumin/clipget/internal/cli"
	"github.com/guiyumin/clipget/internal/core/config"
	"github.com/guiyumin/clipget/internal/core/version"
)

func main() {
	port := flag.Int("port", 0, "HTTP listen port (default: 8080)")
	output := flag.String("output", "", "output directory for downloads")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clipget-server %s\n", version.Version)
		return
	}

	// flag > env > config file > default
	cfg := config.LoadOrDefault()
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *output != "" {
		cfg.OutputDir = *output
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.RunServer(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
