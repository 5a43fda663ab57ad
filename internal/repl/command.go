package repl

import (
	"regexp"
	"strings"
)

// Command is a parsed REPL action.
type Command string

const (
	CmdAnalyze   Command = "analyze"
	CmdVisualize Command = "visualize"
	CmdExplore   Command = "explore"
	CmdSummary   Command = "summary"
	CmdAutorun   Command = "autorun"
	CmdIterate   Command = "iterate"
	CmdHistory   Command = "history"
	CmdSave      Command = "save"
	CmdLoad      Command = "load"
	CmdClear     Command = "clear"
	CmdHelp      Command = "help"
	CmdExit      Command = "exit"

	// CmdChat is free text that matched no command
	CmdChat Command = "chat"
)

// commands taking an argument after a space
var argCommands = []Command{CmdAnalyze, CmdVisualize, CmdExplore, CmdAutorun, CmdIterate, CmdSave, CmdLoad}

// bare commands, with aliases
var bareCommands = map[string]Command{
	"summary": CmdSummary,
	"history": CmdHistory,
	"save":    CmdSave,
	"clear":   CmdClear,
	"help":    CmdHelp,
	"?":       CmdHelp,
	"exit":    CmdExit,
	"quit":    CmdExit,
}

// ParseCommand splits a line into a command and its argument. Command words
// are matched case-insensitively; the argument keeps its case. Anything
// that is not a command is CmdChat with the whole line as argument.
func ParseCommand(line string) (Command, string) {
	line = strings.TrimSpace(line)

	if cmd, ok := bareCommands[strings.ToLower(line)]; ok {
		return cmd, ""
	}
	for _, cmd := range argCommands {
		prefix := string(cmd) + " "
		if len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			return cmd, strings.TrimSpace(line[len(prefix):])
		}
	}
	return CmdChat, line
}

// autoPattern marks an analyze question as a request for a multi-step run.
var autoPattern = regexp.MustCompile(`(?i)automated|auto`)

// splitAuto reports whether question asks for an automated run and returns
// the question with the marker words removed.
func splitAuto(question string) (bool, string) {
	if !autoPattern.MatchString(question) {
		return false, question
	}
	clean := autoPattern.ReplaceAllString(question, "")
	return true, strings.Join(strings.Fields(clean), " ")
}
