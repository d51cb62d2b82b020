// ABOUTME: Entry point for the taskpulse-gateway notification server
// ABOUTME: Serves the push endpoint, the broker webhook, and the emit API

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/taskpulse/internal/auth"
	"github.com/2389/taskpulse/internal/config"
	"github.com/2389/taskpulse/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _            _                _
| |_ __ _ ___| | ___ __  _   _| |___  ___
| __/ _' / __| |/ / '_ \| | | | / __|/ _ \
| || (_| \__ \   <| |_) | |_| | \__ \  __/
 \__\__,_|___/_|\_\ .__/ \__,_|_|___/\___|
                  |_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: TASKPULSE_CONFIG env var > XDG_CONFIG_HOME/taskpulse/gateway.yaml > ~/.config/taskpulse/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TASKPULSE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "taskpulse", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: taskpulse-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the notification gateway")
		fmt.Println("  health                     Check gateway health")
		fmt.Println("  token --user ID [--ttl D]  Generate a credential for a user")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Broker:  %s (%s/%s)\n", cfg.Broker.BaseURL, cfg.Broker.PubSub, cfg.Broker.Topic)
	fmt.Println()

	logger.Info("starting taskpulse-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := "http://" + cfg.Server.HTTPAddr + "/healthz"
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: status %d", resp.StatusCode)
	}

	color.Green("gateway healthy (%s)", url)
	return nil
}

func runToken() error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to issue the credential for")
	ttl := fs.Duration("ttl", 24*time.Hour, "credential lifetime")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(*userID, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	out := map[string]string{
		"user_id": *userID,
		"token":   token,
		"expires": time.Now().Add(*ttl).UTC().Format(time.RFC3339),
	}
	return json.NewEncoder(os.Stdout).Encode(out)
}
