package archive

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Opener hands an exported file to the platform viewer.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// SystemOpener launches the desktop's default application for a file.
type SystemOpener struct {
	// GOOS overrides runtime.GOOS; used by tests.
	GOOS string
}

// Command returns the viewer command line for path.
func (o SystemOpener) Command(path string) (string, []string) {
	goos := o.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}

// Open starts the viewer and does not wait for it to exit. The viewer outlives ctx.
func (o SystemOpener) Open(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, args := o.Command(path)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s with %s: %w", path, name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
