package server

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// hasPathPrefix reports whether p is prefix itself or lies below it.
func hasPathPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// stripPathPrefix removes prefix from p and keeps the result rooted.
func stripPathPrefix(p, prefix string) string {
	rest := strings.TrimPrefix(p, prefix)
	if rest == "" || rest[0] != '/' {
		rest = "/" + rest
	}
	return rest
}

// staticFile maps a request path onto a regular file inside root. The
// cleaned path cannot climb above root.
func staticFile(root, reqPath string) (string, bool) {
	if root == "" {
		return "", false
	}
	clean := path.Clean("/" + reqPath)
	full := filepath.Join(root, filepath.FromSlash(clean))
	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		return "", false
	}
	return full, true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
