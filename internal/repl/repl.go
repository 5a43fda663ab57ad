// Package repl is the interactive analysis shell.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/iterative"
	"github.com/steveyegge/analyst/internal/storage"
	"github.com/steveyegge/analyst/internal/types"
)

// Iteration bounds per entry point.
var (
	AutoRunOptions    = iterative.RunOptions{MinIterations: 3, MaxIterations: 20} // analyze auto, free text
	SummaryRunOptions = iterative.RunOptions{MinIterations: 5, MaxIterations: 25} // summary, iterate
	AutorunOptions    = iterative.DefaultRunOptions()                             // autorun
)

// CommandHandler handles a specific command
type CommandHandler func(ctx context.Context, arg string) error

// Config holds REPL configuration
type Config struct {
	Controller *iterative.Controller

	// DatasetPath is uploaded by Open. Optional when a session is loaded later.
	DatasetPath string

	// Store persists finished runs. Optional.
	Store storage.RunStore

	// Recorder is the controller's event recorder; its events are saved with
	// each run and it is reset before the next one. Optional.
	Recorder *events.Recorder

	// Out receives all output; os.Stdout if nil.
	Out io.Writer

	// SessionDir resolves relative save/load names; the working directory if empty.
	SessionDir string

	// HistoryFile keeps readline history across sessions; in-memory if empty.
	HistoryFile string
}

// REPL represents the interactive shell
type REPL struct {
	ctrl     *iterative.Controller
	store    storage.RunStore
	recorder *events.Recorder
	out      io.Writer

	sessionDir  string
	historyFile string

	dataset *storage.DatasetInfo
	log     []storage.ConversationEntry

	commands map[Command]CommandHandler
	now      func() time.Time
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		ctrl:        cfg.Controller,
		store:       cfg.Store,
		recorder:    cfg.Recorder,
		out:         out,
		sessionDir:  cfg.SessionDir,
		historyFile: cfg.HistoryFile,
		commands:    make(map[Command]CommandHandler),
		now:         time.Now,
	}
	if cfg.DatasetPath != "" {
		r.dataset = &storage.DatasetInfo{Path: cfg.DatasetPath}
	}

	r.registerCommands()
	return r, nil
}

// Open uploads the configured dataset and prints its overview.
func (r *REPL) Open(ctx context.Context) error {
	if r.dataset == nil {
		return nil
	}

	fmt.Fprintf(r.out, "Uploading dataset: %s\n", filepath.Base(r.dataset.Path))
	if err := r.ctrl.LoadDataset(ctx, r.dataset.Path); err != nil {
		return fmt.Errorf("failed to upload dataset: %w", err)
	}
	fmt.Fprintf(r.out, "%s Dataset uploaded successfully!\n", green("✓"))

	r.dataset.UploadedAt = r.now()
	overview, err := r.ctrl.Describe(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "%s Could not retrieve dataset info: %v\n", yellow("!"), err)
		return nil
	}
	r.dataset.AnalysisReady = true
	fmt.Fprintf(r.out, "\n%s\n", overview)
	return nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("analyst> "),
		HistoryFile:       r.historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			} else if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Ctrl+C during a command stops that command, not the shell
		cmdCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		err = r.processInput(cmdCtx, line)
		stop()

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// processInput processes a single line of input. It returns io.EOF for exit.
func (r *REPL) processInput(ctx context.Context, line string) error {
	r.log = append(r.log, storage.ConversationEntry{
		Timestamp: r.now(),
		UserInput: line,
		Type:      "user",
	})

	cmd, arg := ParseCommand(line)
	handler, ok := r.commands[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	return handler(ctx, arg)
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands[CmdAnalyze] = r.cmdAnalyze
	r.commands[CmdVisualize] = r.cmdVisualize
	r.commands[CmdExplore] = r.cmdExplore
	r.commands[CmdSummary] = r.cmdSummary
	r.commands[CmdAutorun] = r.cmdAutorun
	r.commands[CmdIterate] = r.cmdIterate
	r.commands[CmdHistory] = r.cmdHistory
	r.commands[CmdSave] = r.cmdSave
	r.commands[CmdLoad] = r.cmdLoad
	r.commands[CmdClear] = r.cmdClear
	r.commands[CmdHelp] = r.cmdHelp
	r.commands[CmdExit] = r.cmdExit
	r.commands[CmdChat] = r.cmdChat
}

// ConversationLog returns a copy of the user inputs seen so far.
func (r *REPL) ConversationLog() []storage.ConversationEntry {
	out := make([]storage.ConversationEntry, len(r.log))
	copy(out, r.log)
	return out
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	fmt.Fprintf(r.out, "\n%s\n", cyan("Interactive CSV Analyzer"))
	fmt.Fprintln(r.out, "Model-directed analysis in a remote Python sandbox")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out, "Try: 'analyze correlation between columns' or 'visualize data distribution'")
	fmt.Fprintln(r.out)
}

// runLoop runs a multi-step analysis, prints its summary and records
// done(iterations) in the analysis context.
func (r *REPL) runLoop(ctx context.Context, prompt, label string, opts iterative.RunOptions, done func(n int) string) error {
	if r.recorder != nil {
		r.recorder.Reset()
	}

	summary, err := r.ctrl.Run(ctx, prompt, opts)
	if summary == nil {
		return err
	}
	summary.Prompt = label
	PrintSummary(r.out, summary)
	r.ctrl.Analyzer().Context.Append(done(summary.Iterations))

	if r.store != nil {
		var evs []*events.Event
		if r.recorder != nil {
			evs = r.recorder.Events()
		}
		// History is best-effort; the analysis itself already succeeded
		if serr := r.store.SaveRun(context.WithoutCancel(ctx), summary, evs); serr != nil {
			fmt.Fprintf(r.out, "%s failed to save run: %v\n", yellow("!"), serr)
		}
	}
	return err
}

// step runs a single model-directed step and appends contextLine to the
// analysis context when the code succeeded.
func (r *REPL) step(ctx context.Context, prompt, contextLine string) error {
	res, err := r.ctrl.Step(ctx, prompt)
	if err != nil {
		return err
	}
	if res.Code == "" {
		if isCompletion(res.Explanation) {
			fmt.Fprintf(r.out, "%s\n", green("Analysis complete!"))
			return nil
		}
		fmt.Fprintf(r.out, "%s No executable code found in model response\n", red("✗"))
		return nil
	}
	if res.Classification != nil && res.Classification.Recoverable {
		fmt.Fprintf(r.out, "%s %s\n", yellow("Recovery:"), res.Classification.Description)
	}
	if res.Record != nil && res.Record.Succeeded {
		r.ctrl.Analyzer().Context.Append(contextLine)
	}
	return nil
}

func isCompletion(explanation string) bool {
	lower := strings.ToLower(explanation)
	for _, p := range types.CompletionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (r *REPL) cmdAnalyze(ctx context.Context, question string) error {
	if question == "" {
		return fmt.Errorf("usage: analyze [auto] <question>")
	}
	fmt.Fprintf(r.out, "\n%s %s\n", cyan("Analyzing:"), question)

	if auto, clean := splitAuto(question); auto {
		return r.runLoop(ctx, iterative.IterativePrompt(clean), question, AutoRunOptions, func(n int) string {
			return fmt.Sprintf("Automated iterative analysis of '%s' completed in %d steps", question, n)
		})
	}
	return r.step(ctx, iterative.QuestionPrompt(question),
		fmt.Sprintf("User asked: %s. Analysis completed.", question))
}

func (r *REPL) cmdVisualize(ctx context.Context, request string) error {
	if request == "" {
		return fmt.Errorf("usage: visualize <request>")
	}
	fmt.Fprintf(r.out, "\n%s %s\n", cyan("Creating visualization:"), request)
	return r.step(ctx, iterative.VisualizePrompt(request), "Created visualization: "+request)
}

func (r *REPL) cmdExplore(ctx context.Context, aspect string) error {
	if aspect == "" {
		return fmt.Errorf("usage: explore <aspect>")
	}
	fmt.Fprintf(r.out, "\n%s %s\n", cyan("Exploring:"), aspect)
	return r.step(ctx, iterative.ExplorePrompt(aspect), "Explored: "+aspect)
}

func (r *REPL) cmdSummary(ctx context.Context, _ string) error {
	fmt.Fprintf(r.out, "\n%s\n", cyan("Generating comprehensive summary with iterative analysis..."))
	return r.runLoop(ctx, iterative.SummaryPrompt, "summary", SummaryRunOptions, func(n int) string {
		return fmt.Sprintf("Comprehensive iterative summary completed in %d steps", n)
	})
}

func (r *REPL) cmdAutorun(ctx context.Context, prompt string) error {
	if prompt == "" {
		return fmt.Errorf("usage: autorun <prompt>")
	}
	fmt.Fprintf(r.out, "\n%s\n", cyan("Starting automated analysis session..."))
	return r.runLoop(ctx, prompt, prompt, AutorunOptions, func(n int) string {
		return fmt.Sprintf("Automated analysis completed in %d iterations", n)
	})
}

func (r *REPL) cmdIterate(ctx context.Context, prompt string) error {
	if prompt == "" {
		return fmt.Errorf("usage: iterate <prompt>")
	}
	fmt.Fprintf(r.out, "\n%s\n", cyan("Starting iterative analysis session..."))
	return r.runLoop(ctx, prompt, prompt, SummaryRunOptions, func(n int) string {
		return fmt.Sprintf("Iterative analysis completed in %d iterations", n)
	})
}

// cmdChat handles free text: in-depth requests start a run, anything else
// is a single step with the text as the prompt.
func (r *REPL) cmdChat(ctx context.Context, input string) error {
	fmt.Fprintf(r.out, "\n%s %s\n", cyan("Processing:"), input)

	if iterative.WantsIteration(input) {
		fmt.Fprintln(r.out, "Detected request for comprehensive analysis, starting iterative mode...")
		return r.runLoop(ctx, iterative.ComprehensivePrompt(input), input, AutoRunOptions, func(n int) string {
			return fmt.Sprintf("Comprehensive analysis of '%s' completed in %d steps", input, n)
		})
	}
	return r.step(ctx, input, "User query: "+input)
}

func (r *REPL) cmdHistory(ctx context.Context, _ string) error {
	printHistory(r.out, r.ctrl.Analyzer().History.Records())
	return nil
}

func (r *REPL) sessionPath(name string) string {
	if filepath.IsAbs(name) || r.sessionDir == "" {
		return name
	}
	return filepath.Join(r.sessionDir, name)
}

func (r *REPL) cmdSave(ctx context.Context, name string) error {
	path := r.sessionPath(storage.SessionFileName(name, r.now()))
	a := r.ctrl.Analyzer()
	s := &storage.Session{
		Timestamp:       r.now(),
		DatasetInfo:     r.dataset,
		AnalysisContext: a.Context.String(),
		History:         a.History.Records(),
		ConversationLog: r.ConversationLog(),
	}
	if err := storage.SaveSession(path, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	fmt.Fprintf(r.out, "%s Session saved to: %s\n", green("✓"), path)
	return nil
}

func (r *REPL) cmdLoad(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("usage: load <file>")
	}
	path := r.sessionPath(storage.SessionFileName(name, r.now()))
	s, err := storage.LoadSession(path)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("session file not found: %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	r.ctrl.Analyzer().Restore(s.AnalysisContext, s.History)
	r.log = append([]storage.ConversationEntry(nil), s.ConversationLog...)
	if s.DatasetInfo != nil {
		r.dataset = s.DatasetInfo
	}

	fmt.Fprintf(r.out, "%s Session loaded from: %s\n", green("✓"), path)
	fmt.Fprintf(r.out, "   History entries: %d\n", len(s.History))
	return nil
}

func (r *REPL) cmdClear(ctx context.Context, _ string) error {
	r.ctrl.Analyzer().Clear()
	r.log = nil
	fmt.Fprintf(r.out, "%s Analysis context and history cleared\n", green("✓"))
	return nil
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(ctx context.Context, _ string) error {
	fmt.Fprintf(r.out, "\n%s\n", cyan("Available Commands:"))
	fmt.Fprintln(r.out)

	commands := []struct {
		name string
		desc string
	}{
		{"analyze <question>", "Ask a specific analysis question"},
		{"analyze auto <topic>", "Iterative analysis that builds step by step"},
		{"visualize <request>", "Create a specific visualization"},
		{"explore <aspect>", "Explore one aspect of the data"},
		{"summary", "Iterative comprehensive summary"},
		{"autorun <prompt>", "Custom iterative analysis session"},
		{"iterate <prompt>", "Force iterative mode for any analysis"},
		{"history", "Show executed steps"},
		{"save [file]", "Save the current session"},
		{"load <file>", "Load a previous session"},
		{"clear", "Clear analysis context and history"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the analyzer"},
	}
	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %s %s\n", green(fmt.Sprintf("%-22s", cmd.name)), cmd.desc)
	}

	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "Free text containing %s\n", yellow(strings.Join(iterative.IterationKeywords, ", ")))
	fmt.Fprintln(r.out, "starts an iterative analysis automatically, for example:")
	fmt.Fprintln(r.out, "  'comprehensive heart disease analysis'")
	fmt.Fprintln(r.out)
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(ctx context.Context, _ string) error {
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return io.EOF // Signal to exit the loop
}
