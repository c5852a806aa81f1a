package encoder

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeDuration asks ffprobe for a media file's container duration.
func ProbeDuration(ctx context.Context, probePath, mediaPath string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, probePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", mediaPath, err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing probe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
