//go:build darwin

package video

import (
	"context"
	"os/exec"
)

func listCameras(ctx context.Context) ([]Camera, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
	// ffmpeg exits non-zero after listing; the listing is on stderr
	out, _ := cmd.CombinedOutput()
	return parseAVFoundation(string(out)), nil
}

func inputArgs(id string) []string {
	return []string{"-f", "avfoundation", "-framerate", "30", "-i", id}
}
