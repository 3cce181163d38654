package modes

import (
	"strings"
	"unicode/utf8"
)

// TaskerPrefix qualifies the engine mode of a tasker submission.
const TaskerPrefix = "tasker:"

// Submission is what the session controller receives for one user submission.
type Submission struct {
	Instruction string
	Mode        string
}

// Resolve maps a user mode and raw instruction text onto the engine invocation.
//
// Tasker submissions drop their leading trigger character, are trimmed, and are
// folded into the mode as "tasker:<text>" with an empty instruction. Every
// other mode passes both values through unchanged. Resolve never fails.
func Resolve(mode Mode, raw string) Submission {
	if mode != Tasker {
		return Submission{Instruction: raw, Mode: string(mode)}
	}
	return Submission{Mode: TaskerPrefix + strings.TrimSpace(stripLeadingChar(raw))}
}

// TaskerWorkflow extracts the workflow key from an engine mode produced by
// Resolve. ok is false when mode is not a tasker mode.
func TaskerWorkflow(mode string) (key string, ok bool) {
	if !strings.HasPrefix(mode, TaskerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(mode, TaskerPrefix), true
}

func stripLeadingChar(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeRuneInString(s)
	return s[size:]
}
