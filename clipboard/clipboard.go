package clipboard

import cb "github.com/atotto/clipboard"

// Copy places text on the system clipboard.
func Copy(text string) error {
	return cb.WriteAll(text)
}

func Read() (string, error) {
	return cb.ReadAll()
}

// Available reports whether a clipboard backend (xclip, xsel,
// wl-clipboard, pbcopy or the Windows API) can be used.
func Available() bool {
	return !cb.Unsupported
}
