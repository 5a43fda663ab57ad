package sandbox

import "strings"

// Action is the remedy the controller applies for a classified error.
type Action int

const (
	ActionNone Action = iota
	ActionRecoverSandbox
	ActionAlternativeApproach
	ActionReloadDataset
)

func (a Action) String() string {
	switch a {
	case ActionRecoverSandbox:
		return "recover_sandbox"
	case ActionAlternativeApproach:
		return "alternative_approach"
	case ActionReloadDataset:
		return "reload_dataset"
	default:
		return "none"
	}
}

// Classification is the verdict for one execution error.
type Classification struct {
	Recoverable bool
	Action      Action
	Description string
}

// ErrorPattern is one row of the classification table.
type ErrorPattern struct {
	Substrings  []string
	Action      Action
	Description string
}

// ErrorPatterns is checked in order; the first row with a matching
// substring wins. Sandbox-gone errors name the sandbox or session
// explicitly so that a plain "file not found" reaches the dataset row.
var ErrorPatterns = []ErrorPattern{
	{
		Substrings:  []string{"sandbox was not found", "sandbox not found", "session not found", "timeout"},
		Action:      ActionRecoverSandbox,
		Description: "sandbox lost or timed out; reinitializing",
	},
	{
		Substrings:  []string{"import", "module"},
		Action:      ActionAlternativeApproach,
		Description: "missing module; the next step should avoid it",
	},
	{
		Substrings:  []string{"file not found", "no such file"},
		Action:      ActionReloadDataset,
		Description: "dataset file missing; re-uploading",
	},
}

// ClassifyError maps error text to a recovery action. Matching is
// case-insensitive. Unmatched errors are not recoverable and keep their
// original text as description.
func ClassifyError(errText string) Classification {
	lower := strings.ToLower(errText)
	for _, p := range ErrorPatterns {
		for _, sub := range p.Substrings {
			if strings.Contains(lower, sub) {
				return Classification{Recoverable: true, Action: p.Action, Description: p.Description}
			}
		}
	}
	return Classification{Action: ActionNone, Description: errText}
}
