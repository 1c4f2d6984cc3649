// ABOUTME: Entry point for the coven-console CLI
// ABOUTME: Attaches to conversation streams and renders normalized traces

package main

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/language"

	"github.com/2389/coven-console/internal/config"
	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
	"github.com/2389/coven-console/internal/history"
	"github.com/2389/coven-console/internal/runtime"
	"github.com/2389/coven-console/internal/stream"
	"github.com/2389/coven-console/internal/trace"
	"github.com/2389/coven-console/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the console config file.
// Priority: COVEN_CONSOLE_CONFIG env var > XDG_CONFIG_HOME/coven/console.yaml > ~/.config/coven/console.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_CONSOLE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "console.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "console.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: console <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  chat <conversation-id>            Attach to a conversation and chat")
		fmt.Println("  replay <conversation-id>          Re-render traces from local history")
		fmt.Println("  export <conversation-id> [file]   Export a transcript to HTML")
		fmt.Println("  list                              List conversations in local history")
		fmt.Println("  version                           Print version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(ctx)
	case "replay":
		err = runReplay()
	case "export":
		err = runExport()
	case "list":
		err = runList()
	case "version":
		fmt.Printf("console %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file when one exists and falls back to
// defaults otherwise, so `console chat` works against a local server with
// zero setup.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); err != nil {
		if os.Getenv("COVEN_CONSOLE_CONFIG") != "" {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Logs go to stderr so stdout stays clean for chat output.
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func localeTag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}

func conversationArg() (string, error) {
	if len(os.Args) < 3 || strings.TrimSpace(os.Args[2]) == "" {
		return "", fmt.Errorf("conversation id required")
	}
	return os.Args[2], nil
}

func runChat(ctx context.Context) error {
	conversationID, err := conversationArg()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	tag := localeTag(cfg.Trace.Locale)

	ledger, err := history.NewLedger(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("opening history ledger: %w", err)
	}
	defer ledger.Close()

	api := transport.NewAPI(cfg.Server.BaseURL, cfg.Server.Token, nil, logger)
	manager := runtime.NewManager(api, ledger, logger)
	defer manager.Close()

	client := transport.NewClient(cfg.Server.BaseURL, nil, logger)
	if cfg.Stream.InitialBackoff > 0 {
		client.InitialBackoff = cfg.Stream.InitialBackoff
	}
	if cfg.Stream.MaxBackoff > 0 {
		client.MaxBackoff = cfg.Stream.MaxBackoff
	}

	attacher := stream.NewAttacher(manager, client, cfg.Server.Token, logger)
	defer attacher.Close()

	manager.EnsureRuntime(conversation.Conversation{ID: conversationID, Name: conversationID})

	// A lost resume cursor means incremental catch-up is impossible: fetch
	// a fresh detail, rebuild the runtime, and reattach from its cursor.
	attacher.OnResync = func(convID, latestEventID string) {
		go func() {
			detail, err := api.FetchConversation(context.Background(), convID)
			if err != nil {
				manager.SetError(convID, fmt.Sprintf("resync failed: %v", err))
				return
			}
			manager.HydrateRuntime(convID, detail)
			attacher.Detach(convID)
			if err := attacher.Attach(ctx, convID); err != nil {
				manager.SetError(convID, fmt.Sprintf("reattach failed: %v", err))
			}
		}()
	}

	changes, subID := manager.Notifier().Subscribe(ctx, conversationID)
	defer manager.Notifier().Unsubscribe(conversationID, subID)

	gray := color.New(color.FgHiBlack)
	gray.Printf("attaching to %s (%s)\n", conversationID, cfg.Server.BaseURL)
	gray.Println("commands: /stop, /approve, /deny, /trace <execution-id>, /rollback <message-id>, /quit")

	toggles := make(chan string, 4)
	go renderChanges(ctx, manager, conversationID, changes, toggles, tag)

	if err := hydrateFromLedger(manager, ledger, conversationID); err != nil {
		return err
	}
	if err := attacher.Attach(ctx, conversationID); err != nil {
		return fmt.Errorf("attaching stream: %w", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := handleChatLine(ctx, manager, conversationID, line, toggles); err != nil {
			if err == errQuit {
				return nil
			}
			color.Red("error: %v", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func handleChatLine(ctx context.Context, manager *runtime.Manager, conversationID, line string, toggles chan<- string) error {
	if !strings.HasPrefix(line, "/") {
		_, err := manager.SubmitMessage(ctx, conversationID, line)
		return err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return errQuit
	case "/stop":
		exec, ok := activeExecution(manager, conversationID)
		if !ok {
			return fmt.Errorf("no active execution")
		}
		return manager.StopExecution(ctx, conversationID, exec.ID)
	case "/approve", "/deny":
		exec, ok := confirmingExecution(manager, conversationID)
		if !ok {
			return fmt.Errorf("no execution awaiting confirmation")
		}
		decision := "approved"
		if fields[0] == "/deny" {
			decision = "denied"
		}
		return manager.ResolveConfirmation(ctx, conversationID, exec.ID, decision)
	case "/trace":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /trace <execution-id>")
		}
		select {
		case toggles <- fields[1]:
		default:
		}
		return nil
	case "/rollback":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /rollback <message-id>")
		}
		return manager.Rollback(ctx, conversationID, fields[1])
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}

func activeExecution(manager *runtime.Manager, conversationID string) (execution.Execution, bool) {
	view, ok := manager.View(conversationID)
	if !ok {
		return execution.Execution{}, false
	}
	for _, e := range view.Executions {
		if !execution.IsTerminal(e.State) {
			return e, true
		}
	}
	return execution.Execution{}, false
}

func confirmingExecution(manager *runtime.Manager, conversationID string) (execution.Execution, bool) {
	view, ok := manager.View(conversationID)
	if !ok {
		return execution.Execution{}, false
	}
	for _, e := range view.Executions {
		if e.State == execution.StateConfirming {
			return e, true
		}
	}
	return execution.Execution{}, false
}

// hydrateFromLedger replays recorded events through the runtime and then
// hydrates it with the folded state plus the ledger's snapshots, so rollback
// points survive a console restart and the resume cursor starts past what
// the ledger already holds.
func hydrateFromLedger(manager *runtime.Manager, ledger *history.Ledger, conversationID string) error {
	replayed, err := ledger.Events(conversationID, 0)
	if err != nil {
		return fmt.Errorf("replaying history: %w", err)
	}
	for _, ev := range replayed {
		manager.ApplyIncomingEvent(conversationID, ev)
	}

	snaps, err := ledger.Snapshots(conversationID)
	if err != nil {
		return fmt.Errorf("reading snapshots: %w", err)
	}

	view, ok := manager.View(conversationID)
	if !ok {
		return nil
	}
	manager.HydrateRuntime(conversationID, runtime.HydrationDetail{
		Conversation: view.Conversation,
		Messages:     view.Messages,
		Executions:   view.Executions,
		Events:       view.Events,
		Snapshots:    snaps,
		LastEventID:  view.LastEventID,
	})
	return nil
}

// renderChanges prints messages and execution progress as the runtime
// changes. It owns all its cursor state, so no locking is needed beyond the
// views it takes.
func renderChanges(ctx context.Context, manager *runtime.Manager, conversationID string, changes <-chan runtime.Change, toggles <-chan string, tag language.Tag) {
	printedMessages := 0
	lastStates := map[string]execution.State{}
	lastStatus := conversation.ConnectionStatus("")
	expansion := trace.NewExpansionState()
	tickLine := false

	clearTick := func() {
		if tickLine {
			fmt.Print("\r\033[K")
			tickLine = false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case executionID := <-toggles:
			view, found := manager.View(conversationID)
			if !found {
				return
			}
			clearTick()
			models := trace.BuildExecutionTraceViewModels(view.Events, view.Executions, tag, time.Now())
			expansion.Prune(models)
			if expansion.Toggle(executionID) {
				for _, vm := range models {
					if vm.ExecutionID == executionID {
						printTraceSummary(vm)
						printSteps(vm)
					}
				}
			} else {
				color.New(color.FgHiBlack).Printf("  collapsed %s\n", executionID)
			}
		case change, ok := <-changes:
			if !ok {
				return
			}
			view, found := manager.View(conversationID)
			if !found {
				return
			}

			switch change.Kind {
			case runtime.ChangeMessages, runtime.ChangeRollback, runtime.ChangeHydrated:
				clearTick()
				if change.Kind != runtime.ChangeMessages {
					if change.Kind == runtime.ChangeRollback {
						color.Yellow("— conversation rolled back —")
					}
					printedMessages = 0
				}
				for ; printedMessages < len(view.Messages); printedMessages++ {
					printMessage(view.Messages[printedMessages])
				}
			case runtime.ChangeExecutions:
				clearTick()
				printExecutionTransitions(view, lastStates, expansion, tag)
			case runtime.ChangeTick:
				printRunningActions(view, tag)
				tickLine = true
			case runtime.ChangeStatus:
				if view.Status != lastStatus {
					clearTick()
					lastStatus = view.Status
					color.New(color.FgHiBlack).Printf("· stream %s\n", view.Status)
				}
			case runtime.ChangeError:
				if view.Err != "" {
					clearTick()
					color.Red("! %s", view.Err)
				}
			}
		}
	}
}

// printRunningActions overwrites one status line with the in-flight
// sub-steps and their hydrated elapsed time.
func printRunningActions(view runtime.View, tag language.Tag) {
	actions := trace.BuildRunningActionViewModels(view.Events, view.Executions, tag)
	hydrated := trace.HydrateRunningActionElapsed(actions, tag, time.Now())
	if len(hydrated) == 0 {
		fmt.Print("\r\033[K")
		return
	}
	latest := hydrated[len(hydrated)-1]
	fmt.Print("\r\033[K")
	color.New(color.FgHiBlack).Printf("  … %s (%s)", latest.Primary, latest.ElapsedLabel)
}

func printMessage(msg conversation.Message) {
	switch msg.Role {
	case conversation.RoleUser:
		color.New(color.FgGreen, color.Bold).Printf("you ")
	case conversation.RoleAssistant:
		color.New(color.FgCyan, color.Bold).Printf("agent ")
	default:
		color.New(color.FgYellow, color.Bold).Printf("system ")
	}
	fmt.Println(msg.Content)
}

func printExecutionTransitions(view runtime.View, lastStates map[string]execution.State, expansion *trace.ExpansionState, tag language.Tag) {
	models := trace.BuildExecutionTraceViewModels(view.Events, view.Executions, tag, time.Now())
	expansion.Prune(models)
	for _, vm := range models {
		if lastStates[vm.ExecutionID] == vm.State {
			continue
		}
		lastStates[vm.ExecutionID] = vm.State
		printTraceSummary(vm)
		if expansion.IsExpanded(vm.ExecutionID) {
			printSteps(vm)
		}
	}
}

func printSteps(vm trace.ViewModel) {
	for _, step := range vm.Steps {
		printStep(step)
	}
}

func printTraceSummary(vm trace.ViewModel) {
	marker := color.New(color.FgHiBlack)
	switch vm.State {
	case execution.StateFailed:
		marker = color.New(color.FgRed)
	case execution.StateCompleted:
		marker = color.New(color.FgGreen)
	case execution.StateConfirming:
		marker = color.New(color.FgYellow)
	}
	marker.Printf("  ▶ %s", vm.SummaryPrimary)
	if vm.SummarySecondary != "" {
		color.New(color.FgHiBlack).Printf("  %s", vm.SummarySecondary)
	}
	fmt.Println()
}

// runReplay folds the local ledger back through the runtime and prints the
// normalized trace for every execution.
func runReplay() error {
	conversationID, err := conversationArg()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	tag := localeTag(cfg.Trace.Locale)

	view, ledger, err := replayView(cfg, logger, conversationID)
	if err != nil {
		return err
	}
	defer ledger.Close()

	for _, msg := range view.Messages {
		printMessage(msg)
	}

	models := trace.BuildExecutionTraceViewModels(view.Events, view.Executions, tag, time.Now())
	if len(models) == 0 {
		color.New(color.FgHiBlack).Println("no executions recorded")
		return nil
	}

	for _, vm := range models {
		printTraceSummary(vm)
		printSteps(vm)
	}
	return nil
}

// runList prints the conversation ids recorded in the local ledger.
func runList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogger(cfg.Logging)

	ledger, err := history.NewLedger(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("opening history ledger: %w", err)
	}
	defer ledger.Close()

	ids, err := ledger.Conversations()
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	if len(ids) == 0 {
		color.New(color.FgHiBlack).Println("no conversations recorded")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func printStep(step trace.Step) {
	glyph := "·"
	switch step.Kind {
	case trace.StepToolCall:
		glyph = "⚒"
	case trace.StepToolResult:
		glyph = "✓"
	case trace.StepReasoning:
		glyph = "…"
	}

	tone := color.New(color.FgWhite)
	switch step.StatusTone {
	case trace.ToneError:
		tone = color.New(color.FgRed)
	case trace.ToneWarning:
		tone = color.New(color.FgYellow)
	case trace.ToneSuccess:
		tone = color.New(color.FgGreen)
	}

	fmt.Printf("      %s ", glyph)
	tone.Print(step.Title)
	if step.Summary != "" && step.Summary != step.Title {
		color.New(color.FgHiBlack).Printf("  %s", step.Summary)
	}
	fmt.Println()
}

// replayView rebuilds a conversation view purely from the ledger. The
// runtime has no backend here, so user actions are unavailable.
func replayView(cfg *config.Config, logger *slog.Logger, conversationID string) (runtime.View, *history.Ledger, error) {
	ledger, err := history.NewLedger(cfg.History.Path)
	if err != nil {
		return runtime.View{}, nil, fmt.Errorf("opening history ledger: %w", err)
	}

	events, err := ledger.Events(conversationID, 0)
	if err != nil {
		ledger.Close()
		return runtime.View{}, nil, fmt.Errorf("reading history: %w", err)
	}
	if len(events) == 0 {
		ledger.Close()
		return runtime.View{}, nil, fmt.Errorf("no history for conversation %s", conversationID)
	}

	manager := runtime.NewManager(nil, nil, logger)
	defer manager.Close()

	manager.EnsureRuntime(conversation.Conversation{ID: conversationID, Name: conversationID})
	for _, ev := range events {
		manager.ApplyIncomingEvent(conversationID, ev)
	}

	view, _ := manager.View(conversationID)
	return view, ledger, nil
}

// runExport renders a conversation transcript to a standalone HTML file.
func runExport() error {
	conversationID, err := conversationArg()
	if err != nil {
		return err
	}
	outPath := conversationID + ".html"
	if len(os.Args) > 3 {
		outPath = os.Args[3]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	tag := localeTag(cfg.Trace.Locale)

	view, ledger, err := replayView(cfg, logger, conversationID)
	if err != nil {
		return err
	}
	defer ledger.Close()

	html := renderTranscriptHTML(view, tag)
	if err := os.WriteFile(outPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	color.Green("exported %s (%d messages, %d executions)", outPath, len(view.Messages), len(view.Executions))
	return nil
}

func renderTranscriptHTML(view runtime.View, tag language.Tag) string {
	title := html.EscapeString(view.Conversation.ID)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString(fmt.Sprintf("<title>%s</title>\n", title))
	b.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;}" +
		".role{font-weight:bold;margin-top:1.5rem;}" +
		".trace{color:#666;font-size:0.9rem;margin-left:1rem;}</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString(fmt.Sprintf("<h1>%s</h1>\n", title))

	models := trace.BuildExecutionTraceViewModels(view.Events, view.Executions, tag, time.Now())
	byMessage := map[string][]trace.ViewModel{}
	for _, vm := range models {
		byMessage[vm.MessageID] = append(byMessage[vm.MessageID], vm)
	}

	for _, msg := range view.Messages {
		b.WriteString(fmt.Sprintf("<div class=\"role\">%s</div>\n", msg.Role))
		b.WriteString(trace.RenderMarkdown(msg.Content))
		b.WriteString("\n")

		for _, vm := range byMessage[msg.ID] {
			b.WriteString("<div class=\"trace\">")
			b.WriteString(fmt.Sprintf("<div>%s</div>\n", html.EscapeString(vm.SummaryPrimary)))
			if vm.SummarySecondary != "" {
				b.WriteString(fmt.Sprintf("<div>%s</div>\n", html.EscapeString(vm.SummarySecondary)))
			}
			b.WriteString("<ul>\n")
			for _, step := range vm.Steps {
				b.WriteString(fmt.Sprintf("<li>%s</li>\n", html.EscapeString(step.Title)))
			}
			b.WriteString("</ul></div>\n")
		}
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}
