//go:build !windows

package process

import "os"

const venvBinDir = "bin"

var execExts = []string{""}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Mode()&0o111 != 0
}

func envKeyEqual(a, b string) bool { return a == b }
