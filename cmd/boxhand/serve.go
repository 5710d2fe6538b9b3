package main

import (
	"bytes"
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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/boxhand/internal/api"
	"github.com/mattjoyce/boxhand/internal/config"
	"github.com/mattjoyce/boxhand/internal/dispatch"
	"github.com/mattjoyce/boxhand/internal/events"
	"github.com/mattjoyce/boxhand/internal/history"
	"github.com/mattjoyce/boxhand/internal/lock"
	"github.com/mattjoyce/boxhand/internal/log"
	"github.com/mattjoyce/boxhand/internal/tui/watch"
	"github.com/mattjoyce/boxhand/internal/viewer"
)

const defaultAPIURL = "http://127.0.0.1:7792"

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "serve requires api.enabled: true in the config")
		return 1
	}

	logger := log.WithComponent("main")
	logger.Info("boxhand starting", "version", version, "listen", cfg.API.Listen)

	historyPath := config.ExpandPath(cfg.History.Path)
	pidLockPath := filepath.Join(filepath.Dir(historyPath), "boxhand.pid")
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := history.Open(ctx, historyPath)
	if err != nil {
		logger.Error("failed to open history log", "path", historyPath, "error", err)
		return 1
	}
	defer db.Close()
	store := history.NewStore(db)
	logger.Info("history log opened", "path", historyPath)

	hub := events.NewHub(256)
	registry := viewer.NewRegistry(cfg.Viewer.RingLines, viewerEventPublisher(hub))

	// The daemon has no terminal to prompt on, so no selector: machine
	// names come from API requests or not at all.
	d := dispatch.New(cfg, registry, hub, dispatch.WithHistory(store))

	server := api.New(api.Config{
		Listen: cfg.API.Listen,
		Key:    cfg.API.Key,
	}, d, registry, hub, store, log.WithComponent("api"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	logger.Info("boxhand running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("boxhand stopped")
	return 0
}

// viewerEventPublisher bridges registry lifecycle callbacks onto the hub
// under the viewer.* event types SSE consumers filter on.
func viewerEventPublisher(hub *events.Hub) func(event, name string) {
	return func(event, name string) {
		typ := events.TypeViewerOpened
		if event == "closed" {
			typ = events.TypeViewerClosed
		}
		hub.Publish(typ, map[string]string{"viewer": name})
	}
}

func printServeHelp() {
	fmt.Println("Usage: boxhand serve [--config PATH]")
	fmt.Println("Run the boxhand daemon: HTTP API, SSE event stream, and viewer registry.")
	fmt.Println("Requires api.enabled: true in the config.")
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", defaultAPIURL, "Daemon API URL")
	apiKey := fs.String("api-key", os.Getenv("BOXHAND_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or BOXHAND_API_KEY env var.")
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func printWatchHelp() {
	fmt.Println("Usage: boxhand watch [flags]")
	fmt.Println()
	fmt.Println("Live TUI over a running daemon's viewers and their output.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Daemon API URL (default: " + defaultAPIURL + ")")
	fmt.Println("  --api-key KEY    API Bearer Token (or BOXHAND_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Select viewer")
	fmt.Println("  PgUp/PgDn        Scroll output")
}

func runViewersNoun(args []string) int {
	if len(args) < 1 {
		printViewersNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printViewersNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "close-all":
		return runViewersClose(actionArgs, "all")
	case "close-idle":
		return runViewersClose(actionArgs, "idle")
	case "list":
		return runViewersList(actionArgs)
	case "help":
		printViewersNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown viewers action: %s\n", action)
		return 1
	}
}

func printViewersNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: boxhand viewers <action> [flags]")
	fmt.Fprintln(w, "Actions: list, close-all, close-idle")
	fmt.Fprintln(w, "Operates on a running daemon via its API.")
}

func parseRemoteFlags(name string, args []string) (apiURL, apiKey string, ok bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	url := fs.String("api-url", defaultAPIURL, "Daemon API URL")
	key := fs.String("api-key", os.Getenv("BOXHAND_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return "", "", false
	}
	if *key == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or BOXHAND_API_KEY env var.")
		return "", "", false
	}
	return *url, *key, true
}

func runViewersClose(args []string, mode string) int {
	apiURL, apiKey, ok := parseRemoteFlags("viewers", args)
	if !ok {
		return 1
	}

	var resp api.CloseViewersResponse
	if code := callDaemon(apiURL, apiKey, "DELETE", "/viewers?mode="+mode, nil, &resp); code != 0 {
		return code
	}
	fmt.Printf("Closed %d viewer(s)\n", resp.Closed)
	return 0
}

func runViewersList(args []string) int {
	apiURL, apiKey, ok := parseRemoteFlags("viewers", args)
	if !ok {
		return 1
	}

	var list []api.ViewerSummary
	if code := callDaemon(apiURL, apiKey, "GET", "/viewers", nil, &list); code != 0 {
		return code
	}
	if len(list) == 0 {
		fmt.Println("No open viewers.")
		return 0
	}
	for _, v := range list {
		state := "idle"
		if v.Attached {
			state = "running"
		}
		fmt.Printf("%-40s %-8s %d lines\n", v.Name, state, v.TotalLines)
	}
	return 0
}

// dispatchRemote sends an action to a running daemon instead of spawning
// locally. The daemon owns the viewer; `boxhand watch` shows the output.
func dispatchRemote(f actionFlags, action string, extra []string) int {
	if f.apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or BOXHAND_API_KEY env var.")
		return 1
	}

	dir := f.dir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		dir = cwd
	}

	body := api.DispatchRequest{
		Dir:     dir,
		Options: f.options,
		Args:    extra,
		Machine: f.machine,
	}

	var resp api.DispatchResponse
	if code := callDaemon(f.apiURL, f.apiKey, "POST", "/dispatch/"+action, body, &resp); code != 0 {
		return code
	}

	fmt.Printf("Dispatched: %s\n", resp.Command)
	fmt.Printf("Viewer: %s (follow with 'boxhand watch')\n", resp.Viewer)
	return 0
}

// callDaemon performs one authenticated API request and decodes the JSON
// response into out. Returns a CLI exit code.
func callDaemon(apiURL, apiKey, method, path string, body, out any) int {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL+path, reqBody)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach daemon at %s: %v\n", apiURL, err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", apiErr.Error)
		} else {
			fmt.Fprintf(os.Stderr, "Error: daemon returned %s\n", resp.Status)
		}
		return 1
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid daemon response: %v\n", err)
			return 1
		}
	}
	return 0
}
