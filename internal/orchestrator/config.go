package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/devorch/internal/logger"
	"github.com/loykin/devorch/internal/process"
)

// FrontendConfig describes how the frontend dev server is launched.
// "{port}" in Command is replaced by Port at launch.
type FrontendConfig struct {
	Label       string   `mapstructure:"label"`
	Command     string   `mapstructure:"command"`
	Shell       bool     `mapstructure:"shell"`
	Port        int      `mapstructure:"port"`
	ProxyPrefix string   `mapstructure:"proxy_prefix"`
	Env         []string `mapstructure:"env"`
}

// BackendConfig describes how the backend is launched inside its virtualenv.
// Every "{port}" in Command is replaced by Port at launch, so the proxy
// target and the listener stay in step.
type BackendConfig struct {
	Label       string   `mapstructure:"label"`
	Venv        string   `mapstructure:"venv"`
	Command     []string `mapstructure:"command"`
	Port        int      `mapstructure:"port"`
	ProxyPrefix string   `mapstructure:"proxy_prefix"`
	Env         []string `mapstructure:"env"`
}

// Config holds the launch parameters of both roles.
//
// StopWait > 0 makes StopAll wait that long for stopped processes to exit
// before sending SIGKILL. Zero returns right after signalling.
type Config struct {
	Frontend   FrontendConfig `mapstructure:"frontend"`
	Backend    BackendConfig  `mapstructure:"backend"`
	StopWait   time.Duration  `mapstructure:"stop_wait"`
	Host       string         `mapstructure:"host"`
	ProcessLog logger.Config  `mapstructure:"process_log"`
}

// PortPlaceholder in a command is replaced by the role's port.
const PortPlaceholder = "{port}"

// DefaultConfig returns the stock frontend (npm run dev on 5173) and backend
// (uvicorn on 8000) setup.
func DefaultConfig() Config {
	return Config{
		Frontend: FrontendConfig{
			Label:       "VITON Frontend",
			Command:     "npm run dev",
			Shell:       true,
			Port:        5173,
			ProxyPrefix: "/viton/front",
		},
		Backend: BackendConfig{
			Label:       "VITON Backend",
			Venv:        "venv",
			Command:     []string{"uvicorn", "main:app", "--port", PortPlaceholder},
			Port:        8000,
			ProxyPrefix: "/viton/back",
		},
		Host: "localhost",
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Frontend.Label == "" {
		c.Frontend.Label = d.Frontend.Label
	}
	if strings.TrimSpace(c.Frontend.Command) == "" {
		c.Frontend.Command = d.Frontend.Command
		c.Frontend.Shell = d.Frontend.Shell
	}
	if c.Backend.Label == "" {
		c.Backend.Label = d.Backend.Label
	}
	if c.Backend.Venv == "" {
		c.Backend.Venv = d.Backend.Venv
	}
	if len(c.Backend.Command) == 0 {
		c.Backend.Command = d.Backend.Command
	}
	if c.Frontend.Port <= 0 {
		c.Frontend.Port = d.Frontend.Port
	}
	if c.Backend.Port <= 0 {
		c.Backend.Port = d.Backend.Port
	}
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.StopWait < 0 {
		c.StopWait = 0
	}
	return c
}

func (c Config) label(r Role) string {
	if r == Backend {
		return c.Backend.Label
	}
	return c.Frontend.Label
}

// URL is where the role's dev server listens, or "" without a port.
func (c Config) URL(r Role) string {
	port := c.port(r)
	if port <= 0 {
		return ""
	}
	return "http://" + c.Host + ":" + strconv.Itoa(port)
}

func (c Config) port(r Role) int {
	if r == Backend {
		return c.Backend.Port
	}
	return c.Frontend.Port
}

func (c Config) expandPort(r Role, s string) string {
	return strings.ReplaceAll(s, PortPlaceholder, strconv.Itoa(c.port(r)))
}

// spec builds the launch configuration of r in dir.
func (c Config) spec(r Role, dir string) (process.Spec, error) {
	if err := checkDir(dir); err != nil {
		return process.Spec{}, err
	}
	switch r {
	case Frontend:
		s := process.Spec{
			Name:    string(r),
			WorkDir: dir,
			Env:     process.MergeEnv(os.Environ(), c.Frontend.Env),
			Log:     c.ProcessLog,
		}
		command := c.expandPort(r, c.Frontend.Command)
		if c.Frontend.Shell {
			s.Shell = true
			s.Script = command
		} else {
			s.Argv = strings.Fields(command)
		}
		return s, nil
	case Backend:
		env := process.MergeEnv(os.Environ(), c.Backend.Env)
		argv := make([]string, len(c.Backend.Command))
		for i, a := range c.Backend.Command {
			argv[i] = c.expandPort(r, a)
		}
		s := process.VenvSpec(string(r), dir, c.Backend.Venv, argv, env)
		s.Log = c.ProcessLog
		return s, nil
	}
	return process.Spec{}, fmt.Errorf("unknown role %q", r)
}

func checkDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("directory is required")
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
