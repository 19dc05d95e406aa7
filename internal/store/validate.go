package store

import (
	"fmt"

	"github.com/mattn/go-shellwords"

	"github.com/kestrelsched/kestrel/internal/trigger"
)

// ValidateTaskInput rejects malformed commands and trigger configurations
// before a task is ever written. Command parsing uses go-shellwords purely
// as a syntax gate (unbalanced quotes, trailing backslash); the command
// string itself is still executed verbatim via the OS shell, never through
// the parsed argv.
func ValidateTaskInput(in TaskInput) error {
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Command == "" {
		return fmt.Errorf("%w: command is required", ErrValidation)
	}
	if _, err := shellwords.Parse(in.Command); err != nil {
		return fmt.Errorf("%w: command is not syntactically valid: %v", ErrValidation, err)
	}
	if err := trigger.Validate(in.TriggerType, in.TriggerArgs); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
