package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/drfirst/go-iis/internal/config"
	"github.com/drfirst/go-iis/pkg/idempotency"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{fmt.Errorf("load: %w", config.ErrInvalid), exitConfig},
		{fmt.Errorf("vxu: %w", idempotency.ErrRunInProgress), exitInProgress},
		{errors.New("connection refused"), exitFailure},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"vxu", "qbp", "results", "migrate", "ping", "topics"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
	for _, name := range []string{"up", "down", "version"} {
		if cmd, _, err := root.Find([]string{"migrate", name}); err != nil || cmd.Name() != name {
			t.Errorf("migrate %q not registered: %v", name, err)
		}
	}
}

func TestMissingConfigIsConfigError(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.env"), "vxu"})

	err := root.Execute()
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("Execute() error = %v, want config.ErrInvalid", err)
	}
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d", exitCode(err), exitConfig)
	}
}

func TestQBPRequiresPID(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"qbp"})

	if err := root.Execute(); err == nil {
		t.Fatal("qbp without --pid should fail")
	}
}
