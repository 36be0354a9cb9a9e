//go:build linux

package hotkey

import (
	"os"
	"path/filepath"
	"testing"
)

func TestComboEdges(t *testing.T) {
	type ev struct {
		code  uint16
		value int32
	}
	tests := []struct {
		name   string
		events []ev
		downs  int
		ups    int
	}{
		{"full chord", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 0}}, 1, 1},
		{"right modifiers", []ev{{keyRCtrl, 1}, {keyRShift, 1}, {keySpace, 1}, {keySpace, 0}}, 1, 1},
		{"space alone", []ev{{keySpace, 1}, {keySpace, 0}}, 0, 0},
		{"ctrl only", []ev{{keyLCtrl, 1}, {keySpace, 1}, {keySpace, 0}}, 0, 0},
		{"autorepeat", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 2}, {keySpace, 2}, {keySpace, 0}}, 1, 1},
		{"modifier released first", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keyLCtrl, 0}, {keySpace, 0}}, 1, 1},
		{"released modifier", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keyLShift, 0}, {keySpace, 1}}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c combo
			var downs, ups int
			for _, e := range tt.events {
				d, u := c.feed(e.code, e.value)
				if d {
					downs++
				}
				if u {
					ups++
				}
			}
			if downs != tt.downs || ups != tt.ups {
				t.Errorf("downs=%d ups=%d, want %d/%d", downs, ups, tt.downs, tt.ups)
			}
		})
	}
}

func TestFindKeyboards(t *testing.T) {
	dev := t.TempDir()
	sys := t.TempDir()
	oldInput, oldSys := inputDir, sysDir
	inputDir, sysDir = dev, sys
	t.Cleanup(func() { inputDir, sysDir = oldInput, oldSys })

	caps := map[string]string{
		"event0": "402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe",
		"event1": "100000 0",
	}
	for name, c := range caps {
		os.WriteFile(filepath.Join(dev, name), nil, 0644)
		dir := filepath.Join(sys, name, "device", "capabilities")
		os.MkdirAll(dir, 0755)
		os.WriteFile(filepath.Join(dir, "key"), []byte(c+"\n"), 0644)
	}
	os.WriteFile(filepath.Join(dev, "mouse0"), nil, 0644)

	got, err := findKeyboards()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "event0" {
		t.Errorf("keyboards = %v, want only event0", got)
	}

	msg, err := Diagnose()
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if msg == "" {
		t.Error("empty diagnosis")
	}
}
