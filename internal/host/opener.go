package host

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Opener opens link targets outside the editor.
type Opener interface {
	OpenExternal(ctx context.Context, url string) error
	OpenFile(ctx context.Context, path string) error
}

// SystemOpener hands targets to the desktop's default handler.
type SystemOpener struct{}

// OpenExternal implements Opener.
func (SystemOpener) OpenExternal(ctx context.Context, url string) error {
	return systemOpen(ctx, url)
}

// OpenFile implements Opener.
func (SystemOpener) OpenFile(ctx context.Context, path string) error {
	return systemOpen(ctx, path)
}

func systemOpen(ctx context.Context, target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
