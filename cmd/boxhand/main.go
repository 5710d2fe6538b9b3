package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/boxhand/internal/command"
	"github.com/mattjoyce/boxhand/internal/config"
	"github.com/mattjoyce/boxhand/internal/dispatch"
	"github.com/mattjoyce/boxhand/internal/doctor"
	"github.com/mattjoyce/boxhand/internal/editor"
	"github.com/mattjoyce/boxhand/internal/events"
	"github.com/mattjoyce/boxhand/internal/history"
	"github.com/mattjoyce/boxhand/internal/log"
	"github.com/mattjoyce/boxhand/internal/project"
	"github.com/mattjoyce/boxhand/internal/tui"
	"github.com/mattjoyce/boxhand/internal/viewer"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	// Vagrant actions are root-level commands: `boxhand up`, `boxhand ssh web`.
	if _, ok := command.Lookup(cmd); ok {
		if hasHelpFlag(args) {
			printActionHelp(cmd)
			return 0
		}
		return runAction(cmd, args)
	}

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "viewers":
		return runViewersNoun(args)
	case "history":
		if hasHelpFlag(args) {
			printHistoryHelp()
			return 0
		}
		return runHistory(args)
	case "edit":
		if hasHelpFlag(args) {
			printEditHelp()
			return 0
		}
		return runEdit(args)
	case "doctor":
		if hasHelpFlag(args) {
			printDoctorHelp()
			return 0
		}
		return runDoctor(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: boxhand version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("boxhand %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`boxhand - editor-style companion for Vagrant

Usage:
  boxhand <action> [machine] [flags]

Vagrant Actions:
  list-boxes        List installed boxes
  update-box        Update the project's box
  up                Bring machines up
  provision         Run provisioners
  destroy           Destroy machines (confirmed)
  destroy-force     Destroy machines without confirmation
  reload            Restart machines, reloading the Vagrantfile
  resume            Resume suspended machines
  ssh               SSH into a machine
  ssh-command       Run a command over SSH (args after flags)
  status            Show machine status
  global-status     Show status across all projects
  suspend           Suspend machines
  halt              Halt machines
  sync              Sync folders (rsync)
  init-project      Initialize a new Vagrantfile here

Management:
  serve             Run the boxhand daemon (HTTP API + event stream)
  watch             Live TUI over a running daemon's viewers
  viewers           Close daemon viewers (close-all, close-idle)
  history           Show recent dispatches from the local log
  edit              Open the project's Vagrantfile in $EDITOR
  doctor            Validate configuration and environment
  version           Show version information
  help              Show this help message

Common Flags:
  --config PATH     Config file or directory
  --dir PATH        Starting directory (default: current directory)
  --machine NAME    Target machine (skips prompting)
  --prompt          Pick a machine interactively (ssh, halt, ...)
  --options FLAGS   Extra flags passed through to vagrant
  --detach          Send the dispatch to a running daemon instead

Use 'boxhand <action> --help' for action-specific usage.
`)
}

func printActionHelp(action string) {
	spec, _ := command.Lookup(action)
	fmt.Printf("Usage: boxhand %s [machine] [flags]\n", action)
	fmt.Printf("Runs: vagrant %s\n", strings.Join(spec.Template, " "))
	if spec.Scoped {
		fmt.Println("Runs from the nearest project root (directory holding a Vagrantfile).")
	} else {
		fmt.Println("Runs from the current directory; no project root required.")
	}
	if spec.Interactive {
		fmt.Println("Supports --prompt to pick a machine from .vagrant/machines.")
	}
	if action == "ssh-command" {
		fmt.Println("Positional args after flags form the remote command, one token each.")
	}
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config PATH     Config file or directory")
	fmt.Println("  --dir PATH        Starting directory")
	fmt.Println("  --machine NAME    Target machine")
	fmt.Println("  --prompt          Pick a machine interactively")
	fmt.Println("  --options FLAGS   Extra flags passed through to vagrant")
	fmt.Println("  --detach          Dispatch via a running daemon")
}

func printEditHelp() {
	fmt.Println("Usage: boxhand edit [--config PATH] [--dir PATH]")
	fmt.Println("Locate the project's Vagrantfile and open it in $VISUAL/$EDITOR.")
}

func printDoctorHelp() {
	fmt.Println("Usage: boxhand doctor [--config PATH] [--json]")
	fmt.Println("Validate configuration and the host environment.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printHistoryHelp() {
	fmt.Println("Usage: boxhand history [--config PATH] [--limit N] [--json]")
	fmt.Println("Show recent dispatches from the local history log, newest first.")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.Discover()
	}
	// No config anywhere is fine: everything has a default.
	if configPath == "" {
		cfg := config.Defaults()
		log.Setup(cfg.LogLevel, cfg.LogFormat)
		return cfg, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// actionFlags is the flag surface shared by every vagrant action.
type actionFlags struct {
	configPath string
	dir        string
	machine    string
	prompt     bool
	options    string
	detach     bool
	apiURL     string
	apiKey     string
}

func parseActionFlags(action string, args []string) (actionFlags, []string, error) {
	var f actionFlags

	fs := flag.NewFlagSet(action, flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&f.dir, "dir", "", "Starting directory")
	fs.StringVar(&f.machine, "machine", "", "Target machine name")
	fs.BoolVar(&f.prompt, "prompt", false, "Pick a machine interactively")
	fs.StringVar(&f.options, "options", "", "Extra flags passed through to vagrant")
	fs.BoolVar(&f.detach, "detach", false, "Dispatch via a running daemon")
	fs.StringVar(&f.apiURL, "api-url", defaultAPIURL, "Daemon API URL (with --detach)")
	fs.StringVar(&f.apiKey, "api-key", os.Getenv("BOXHAND_API_KEY"), "Daemon API key (with --detach)")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	return f, fs.Args(), nil
}

func runAction(action string, args []string) int {
	f, rest, err := parseActionFlags(action, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	// ssh-command's positional args are the remote command, one argv token
	// each. For every other action a single positional names the machine.
	var extra []string
	switch {
	case action == "ssh-command":
		extra = rest
		if len(extra) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: boxhand ssh-command [flags] <command>...")
			return 1
		}
	case len(rest) == 1 && f.machine == "":
		f.machine = rest[0]
	case len(rest) > 0:
		fmt.Fprintf(os.Stderr, "Unexpected arguments: %s\n", strings.Join(rest, " "))
		return 1
	}

	if f.detach {
		return dispatchRemote(f, action, extra)
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	return dispatchLocal(cfg, action, f, extra)
}

// dispatchLocal spawns the command in this process and streams its output to
// the terminal until it exits.
func dispatchLocal(cfg *config.Config, action string, f actionFlags, extra []string) int {
	hub := events.NewHub(256)
	registry := viewer.NewRegistry(cfg.Viewer.RingLines, nil)

	opts := []dispatch.Option{dispatch.WithSelector(tui.SelectMachine)}

	historyPath := config.ExpandPath(cfg.History.Path)
	if historyPath != "" {
		db, err := history.Open(context.Background(), historyPath)
		if err != nil {
			log.Warn("history log unavailable", "path", historyPath, "error", err)
		} else {
			defer db.Close()
			opts = append(opts, dispatch.WithHistory(history.NewStore(db)))
		}
	}

	d := dispatch.New(cfg, registry, hub, opts...)

	// Subscribe before dispatching so the first output lines are not lost.
	ch, cancel := hub.Subscribe()
	defer cancel()

	disp, err := d.Dispatch(context.Background(), dispatch.Request{
		Action:  action,
		Dir:     f.dir,
		Options: f.options,
		Args:    extra,
		Machine: f.machine,
		Prompt:  f.prompt,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for ev := range ch {
		var payload struct {
			ID   string `json:"id"`
			Line string `json:"line"`
		}
		if err := json.Unmarshal(ev.Data, &payload); err != nil || payload.ID != disp.ID {
			continue
		}
		if ev.Type == events.TypeDispatchOutput {
			fmt.Println(payload.Line)
		}
		if ev.Type == events.TypeDispatchFinished {
			break
		}
	}

	code := disp.Wait()
	if code != 0 {
		return 1
	}
	return 0
}

func runEdit(args []string) int {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dir := fs.String("dir", "", "Starting directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	startDir := *dir
	if startDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		startDir = cwd
	}

	root, err := project.FindRoot(startDir, cfg.FallbackDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	opener := &editor.EnvOpener{}
	if err := opener.OpenFile(filepath.Join(root, project.MarkerFile)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, issue := range result.Errors {
			fmt.Printf("ERROR [%s] %s\n", issue.Category, issue.Message)
		}
		for _, issue := range result.Warnings {
			fmt.Printf("WARN  [%s] %s\n", issue.Category, issue.Message)
		}
		if result.Valid {
			fmt.Println("Status: environment check PASSED.")
		} else {
			fmt.Println("Status: environment check FAILED.")
		}
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum number of entries to show")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	historyPath := config.ExpandPath(cfg.History.Path)
	db, err := history.Open(context.Background(), historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history log: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := history.NewStore(db).Recent(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No dispatches recorded.")
		return 0
	}
	for _, e := range entries {
		status := string(e.Status)
		if e.Status == history.StatusExited && e.ExitCode != nil {
			status = fmt.Sprintf("exit %d", *e.ExitCode)
		}
		fmt.Printf("%s  %-12s %-10s %s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Action, status, e.Command)
	}
	return 0
}
