// Package git wraps the source-repository clone operation.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Clone performs a shallow clone of the source reference into dest.
func Clone(ctx context.Context, sourceRef, dest string) error {
	if sourceRef == "" {
		return fmt.Errorf("source reference cannot be empty")
	}
	if dest == "" {
		return fmt.Errorf("destination cannot be empty")
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", sourceRef, ".")
	cmd.Dir = dest
	// Prevent git from prompting for credentials interactively.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, string(output))
	}
	return nil
}
