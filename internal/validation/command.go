package validation

import (
	"fmt"
	"strings"
)

// shellMetacharacters never appear in a configured command. Commands are
// executed without a shell, so any of these means the value was written
// for one.
var shellMetacharacters = []string{";", "&", "|", "$", "`", "<", ">", "\n", "\r", "\x00"}

// ValidateArgument rejects a single command token carrying shell syntax.
func ValidateArgument(arg string) error {
	for _, char := range shellMetacharacters {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains shell metacharacter %q", char)
		}
	}
	return nil
}

// ValidateCommand checks a configured command line. An empty command is
// allowed when optional is true.
func ValidateCommand(fields []string, optional bool) error {
	if len(fields) == 0 || strings.TrimSpace(fields[0]) == "" {
		if optional {
			return nil
		}
		return fmt.Errorf("command cannot be empty")
	}

	for i, field := range fields {
		if err := ValidateArgument(field); err != nil {
			return fmt.Errorf("argument %d (%q): %w", i, field, err)
		}
	}
	return nil
}
