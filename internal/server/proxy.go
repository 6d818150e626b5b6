package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
)

// ProxyRule forwards every request below Prefix to Target with the prefix
// stripped. The Host header is rewritten to the target.
type ProxyRule struct {
	Prefix string
	Target string
}

type proxyError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func newProxy(rule ProxyRule, log *slog.Logger) (gin.HandlerFunc, error) {
	target, err := url.Parse(rule.Target)
	if err != nil {
		return nil, err
	}
	prefix := sanitizeBase(rule.Prefix)
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = stripPathPrefix(pr.In.URL.Path, prefix)
			if pr.In.URL.RawPath != "" {
				pr.Out.URL.RawPath = stripPathPrefix(pr.In.URL.RawPath, prefix)
			}
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			log.Warn("proxy target unavailable", "prefix", prefix, "target", target.String(), "path", req.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(proxyError{
				Success: false,
				Message: "Upstream " + target.Host + " is not reachable",
				Error:   err.Error(),
			})
		},
	}
	return func(c *gin.Context) {
		rp.ServeHTTP(c.Writer, c.Request)
	}, nil
}
