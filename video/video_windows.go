//go:build windows

package video

import (
	"context"
	"os/exec"
)

func listCameras(ctx context.Context) ([]Camera, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	out, _ := cmd.CombinedOutput()
	return parseDShow(string(out)), nil
}

func inputArgs(id string) []string {
	return []string{"-f", "dshow", "-i", "video=" + id}
}
