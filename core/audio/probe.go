package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
)

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober measures track length with ffprobe, feeding the file on stdin.
type Prober struct {
	ffprobePath string
}

// NewProber returns nil when path is empty, which disables probing.
func NewProber(path string) *Prober {
	if path == "" {
		return nil
	}
	return &Prober{ffprobePath: path}
}

// DurationSeconds returns the length of data rounded to whole seconds.
func (p *Prober) DurationSeconds(ctx context.Context, data []byte) (int, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		"-i", "pipe:0",
	)
	var out, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, stderr.String())
	}
	return parseProbeOutput(out.Bytes())
}

func parseProbeOutput(raw []byte) (int, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if probe.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output")
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", probe.Format.Duration, err)
	}
	return int(math.Round(d)), nil
}
