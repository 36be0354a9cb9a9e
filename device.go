package main

import (
	"fmt"
	"os"

	"rehearse/audio"

	"golang.org/x/term"
)

type pickAction int

const (
	pickMove pickAction = iota
	pickConfirm
	pickQuit
)

// pickKey maps one terminal read to a cursor move or a final action.
func pickKey(in []byte, cursor, count int) (int, pickAction) {
	switch {
	case len(in) == 1 && in[0] == 13:
		return cursor, pickConfirm
	case len(in) == 1 && (in[0] == 3 || in[0] == 'q'):
		return cursor, pickQuit
	case len(in) == 1 && in[0] == 'j', len(in) == 3 && in[0] == 0x1b && in[1] == '[' && in[2] == 'B':
		if cursor < count-1 {
			cursor++
		}
	case len(in) == 1 && in[0] == 'k', len(in) == 3 && in[0] == 0x1b && in[1] == '[' && in[2] == 'A':
		if cursor > 0 {
			cursor--
		}
	}
	return cursor, pickMove
}

func deviceLabel(d audio.DeviceInfo) string {
	if audio.IsBluetooth(d.Name) {
		return d.Name + " (Bluetooth, low quality)"
	}
	return d.Name
}

// selectDevice lets the user pick a microphone with the arrow keys. It
// returns nil when the user backs out.
func selectDevice(ctx audio.Context) (*audio.DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no microphones found")
	}

	if len(devices) == 1 {
		fmt.Printf("Using microphone: %s\n", deviceLabel(devices[0]))
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	render := func() {
		fmt.Print("\r\x1b[J")
		fmt.Print("Select microphone (↑/↓, Enter to confirm, q to keep default):\r\n\r\n")
		for i, d := range devices {
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s\x1b[0m\r\n", deviceLabel(d))
			} else {
				fmt.Printf("    %s\r\n", deviceLabel(d))
			}
		}
	}
	render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		var action pickAction
		cursor, action = pickKey(buf[:n], cursor, len(devices))
		switch action {
		case pickConfirm:
			fmt.Print("\r\n")
			return &devices[cursor], nil
		case pickQuit:
			fmt.Print("\r\n")
			return nil, nil
		}

		fmt.Printf("\x1b[%dA", len(devices)+2)
		render()
	}
}
