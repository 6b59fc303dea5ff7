package main

import (
	"bytes"
	"strings"
	"testing"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand(false)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootHelpListsCommands(t *testing.T) {
	output, err := runRootCommandForTest("--help")
	if err != nil {
		t.Fatalf("execute --help: %v\nOutput:\n%s", err, output)
	}

	for _, name := range []string{"chat", "gateway", "history", "kb", "models", "upload", "status", "onboard", "version"} {
		if !strings.Contains(output, name) {
			t.Errorf("root help missing %q command:\n%s", name, output)
		}
	}
	if strings.Contains(output, "completion") {
		t.Errorf("default completion command should be disabled:\n%s", output)
	}
}

func TestHistoryHelpListsSubcommands(t *testing.T) {
	output, err := runRootCommandForTest("history", "--help")
	if err != nil {
		t.Fatalf("execute history --help: %v\nOutput:\n%s", err, output)
	}

	for _, name := range []string{"list", "show", "open", "clear"} {
		if !strings.Contains(output, name) {
			t.Errorf("history help missing %q subcommand:\n%s", name, output)
		}
	}
}

func TestRootWithoutSubcommandFails(t *testing.T) {
	if _, err := runRootCommandForTest(); err == nil {
		t.Fatalf("expected error when no subcommand is given")
	}
}

func TestKBDeleteRequiresArg(t *testing.T) {
	if _, err := runRootCommandForTest("kb", "delete"); err == nil {
		t.Fatalf("expected missing-argument error")
	}
}
