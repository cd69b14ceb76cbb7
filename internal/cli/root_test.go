package cli

import (
	"bytes"
	"strings"
	"testing"
)

// useVersion sets the build info for one test.
func useVersion(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := appVersion, appCommit, appDate
	t.Cleanup(func() { appVersion, appCommit, appDate = v, c, d })
	SetVersionInfo(version, commit, date)
}

func TestExecute_Version(t *testing.T) {
	useVersion(t, "1.2.3", "abc1234", "2026-10-01")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"chatrange 1.2.3", "commit: abc1234", "built:  2026-10-01"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("version output missing %q:\n%s", want, out.String())
		}
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"export"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"alerts", "capture", "config", "dashboard", "list", "mcp", "metrics", "pick", "show", "simulate", "summarize", "version"}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("%s command not registered on root", name)
		}
	}
}

func TestMCPServeCmd_NotInitialized(t *testing.T) {
	useTestServices(t)
	Archive = nil

	err := mcpServeCmd.RunE(mcpServeCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCaptureCmd_Flags(t *testing.T) {
	if err := captureCmd.Args(captureCmd, []string{"only-start"}); err == nil {
		t.Error("capture requires both anchors")
	}
	wait, err := captureCmd.Flags().GetDuration("wait")
	if err != nil {
		t.Fatal(err)
	}
	if wait <= 0 {
		t.Errorf("expected a positive default --wait, got %s", wait)
	}
}
