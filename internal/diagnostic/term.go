package diagnostic

import "os"

// ColorEnabled reports whether diagnostics written to f should be colored.
// NO_COLOR disables color regardless of the terminal.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(f.Fd())
}
