package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg decodes any container/codec ffmpeg understands by piping mono
// PCM16 at the requested rate to stdout.
type FFmpeg struct {
	Binary string
}

// DecodeFile runs ffmpeg -i path -ac 1 -ar rate -f s16le -.
func (f FFmpeg) DecodeFile(ctx context.Context, path string, sampleRate int) ([]float32, error) {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-nostdin", "-v", "error",
		"-i", path,
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-f", "s16le", "-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return pcm16LEToFloat32(stdout.Bytes())
}
