package process

import (
	"os"
	"path/filepath"
	"strings"
)

// VenvSpec builds a launch configuration that runs argv inside the Python
// virtual environment dir/venv. No shell is involved: the environment is
// prepared the way the activate scripts would do it (VIRTUAL_ENV set, the
// venv's script directory first on PATH, PYTHONHOME removed) and argv[0] is
// resolved against that PATH up front.
//
// baseEnv defaults to the current process environment when nil.
func VenvSpec(name, dir, venv string, argv []string, baseEnv []string) Spec {
	if baseEnv == nil {
		baseEnv = os.Environ()
	}
	venvDir := filepath.Join(dir, venv)
	bin := filepath.Join(venvDir, venvBinDir)

	path := bin
	if cur, ok := LookupEnv(baseEnv, "PATH"); ok && cur != "" {
		path = bin + string(os.PathListSeparator) + cur
	}
	env := SetEnv(baseEnv, "VIRTUAL_ENV", venvDir)
	env = SetEnv(env, "PATH", path)
	env = UnsetEnv(env, "PYTHONHOME")

	args := append([]string(nil), argv...)
	if len(args) > 0 {
		args[0] = lookPathIn(args[0], path)
	}
	return Spec{Name: name, Argv: args, WorkDir: dir, Env: env}
}

// lookPathIn resolves name against the directories of pathList. Names that
// already contain a separator, and names that cannot be found, are returned
// unchanged so that Start reports the failure.
func lookPathIn(name, pathList string) string {
	if name == "" || strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			continue
		}
		for _, ext := range execExts {
			candidate := filepath.Join(dir, name+ext)
			if isExecutable(candidate) {
				return candidate
			}
		}
	}
	return name
}

// LookupEnv returns the value of key in env ("K=V" entries).
func LookupEnv(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && envKeyEqual(k, key) {
			return v, true
		}
	}
	return "", false
}

// SetEnv returns a copy of env with key set to value, replacing earlier
// definitions in place.
func SetEnv(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	set := false
	for _, kv := range env {
		k, _, ok := strings.Cut(kv, "=")
		if ok && envKeyEqual(k, key) {
			if !set {
				out = append(out, k+"="+value)
				set = true
			}
			continue
		}
		out = append(out, kv)
	}
	if !set {
		out = append(out, key+"="+value)
	}
	return out
}

// UnsetEnv returns a copy of env without key.
func UnsetEnv(env []string, key string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if k, _, ok := strings.Cut(kv, "="); ok && envKeyEqual(k, key) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// MergeEnv applies the "K=V" overrides on top of base.
func MergeEnv(base []string, overrides []string) []string {
	out := append([]string(nil), base...)
	for _, kv := range overrides {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			out = SetEnv(out, k, v)
		}
	}
	return out
}
