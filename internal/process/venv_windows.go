//go:build windows

package process

import (
	"os"
	"strings"
)

const venvBinDir = "Scripts"

var execExts = []string{".exe", ".cmd", ".bat", ""}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// Windows environment keys are case-insensitive ("Path" vs "PATH").
func envKeyEqual(a, b string) bool { return strings.EqualFold(a, b) }
