//go:build linux

package video

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const sysfsRoot = "/sys/class/video4linux"

func listCameras(_ context.Context) ([]Camera, error) {
	return scanV4L2("/dev", sysfsRoot)
}

// scanV4L2 lists /dev/videoN nodes that are capture interfaces. UVC cameras
// expose a second metadata node with index 1; only index 0 is kept.
func scanV4L2(devDir, sysDir string) ([]Camera, error) {
	paths, err := filepath.Glob(filepath.Join(devDir, "video*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var cams []Camera
	for _, p := range paths {
		base := filepath.Base(p)
		if idx, err := os.ReadFile(filepath.Join(sysDir, base, "index")); err == nil {
			if strings.TrimSpace(string(idx)) != "0" {
				continue
			}
		}
		name := base
		if b, err := os.ReadFile(filepath.Join(sysDir, base, "name")); err == nil {
			if n := strings.TrimSpace(string(b)); n != "" {
				name = n
			}
		}
		cams = append(cams, Camera{ID: p, Name: name})
	}
	return cams, nil
}

func inputArgs(id string) []string {
	return []string{"-f", "v4l2", "-i", id}
}
