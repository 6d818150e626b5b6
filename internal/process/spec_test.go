package process

import (
	"runtime"
	"strings"
	"testing"
)

func requireUnixSpec(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like shell")
	}
}

func TestBuildCommand_ShellScript(t *testing.T) {
	requireUnixSpec(t)
	s := Spec{Name: "frontend", Script: "npm run dev", Shell: true}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 3 || cmd.Args[1] != "-c" || cmd.Args[2] != "npm run dev" {
		t.Fatalf("expected /bin/sh -c wrapping, got argv=%#v", cmd.Args)
	}
}

func TestBuildCommand_ShellFromArgvQuotes(t *testing.T) {
	requireUnixSpec(t)
	s := Spec{Name: "x", Argv: []string{"echo", "it's here", "plain"}, Shell: true}
	cmd := s.BuildCommand()
	want := `echo 'it'\''s here' plain`
	if cmd.Args[2] != want {
		t.Fatalf("script = %q, want %q", cmd.Args[2], want)
	}
}

func TestBuildCommand_DirectArgv(t *testing.T) {
	s := Spec{Name: "backend", Argv: []string{"uvicorn", "main:app", "--port", "8000"}}
	cmd := s.BuildCommand()
	if got := strings.Join(cmd.Args, " "); got != "uvicorn main:app --port 8000" {
		t.Fatalf("argv = %q", got)
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name        string
		spec        Spec
		errContains string
	}{
		{name: "argv", spec: Spec{Name: "a", Argv: []string{"true"}}},
		{name: "shell script", spec: Spec{Name: "a", Script: "true", Shell: true}},
		{name: "shell argv", spec: Spec{Name: "a", Argv: []string{"true"}, Shell: true}},
		{name: "empty name", spec: Spec{Name: "  ", Argv: []string{"true"}}, errContains: "requires name"},
		{name: "no argv", spec: Spec{Name: "a"}, errContains: "requires argv"},
		{name: "blank program", spec: Spec{Name: "a", Argv: []string{" "}}, errContains: "requires argv"},
		{name: "empty shell", spec: Spec{Name: "a", Shell: true}, errContains: "requires script"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
			}
		})
	}
}
