package doctor

import (
	"bufio"
	"io"
	"strings"
	"testing"
)

func TestChoose(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		options []string
		want    int
		wantErr bool
	}{
		{"single option", "", []string{"Built-in"}, 0, false},
		{"default", "\n", []string{"Built-in", "USB"}, 0, false},
		{"second", "2\n", []string{"Built-in", "USB"}, 1, false},
		{"out of range", "3\n", []string{"Built-in", "USB"}, 0, true},
		{"garbage", "usb\n", []string{"Built-in", "USB"}, 0, true},
		{"empty list", "", nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			got, err := choose(r, io.Discard, "Pick:", tt.options)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
