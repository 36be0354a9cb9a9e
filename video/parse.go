package video

import (
	"regexp"
	"strings"
)

var (
	avfDeviceLine = regexp.MustCompile(`\]\s*\[(\d+)\]\s*(.+)$`)
	dshowLine     = regexp.MustCompile(`"([^"]+)"\s*\(video\)`)
)

// parseAVFoundation extracts video devices from `ffmpeg -f avfoundation
// -list_devices true` output. Audio devices follow a separate heading.
func parseAVFoundation(out string) []Camera {
	var cams []Camera
	inVideo := false
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "video devices:"):
			inVideo = true
			continue
		case strings.Contains(line, "audio devices:"):
			inVideo = false
			continue
		}
		if !inVideo {
			continue
		}
		m := avfDeviceLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || strings.HasPrefix(m[2], "Capture screen") {
			continue
		}
		cams = append(cams, Camera{ID: m[1], Name: strings.TrimSpace(m[2])})
	}
	return cams
}

func parseDShow(out string) []Camera {
	var cams []Camera
	for _, line := range strings.Split(out, "\n") {
		if m := dshowLine.FindStringSubmatch(line); m != nil {
			cams = append(cams, Camera{ID: m[1], Name: m[1]})
		}
	}
	return cams
}
