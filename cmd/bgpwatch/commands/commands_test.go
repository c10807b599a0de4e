package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/bgpwatch/internal/config"
	"github.com/dantte-lp/bgpwatch/internal/gobgp"
	"github.com/dantte-lp/bgpwatch/internal/preflight"
	"github.com/dantte-lp/bgpwatch/internal/probe"
	"github.com/dantte-lp/bgpwatch/internal/ribsummary"
)

// execute runs the command tree with args and returns stdout, stderr and
// the error from Execute.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func TestUnknownTargetPrintsHint(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"junos", "gobgp", "FRR"} {
		t.Run(target, func(t *testing.T) {
			t.Parallel()

			stdout, _, err := execute(t, "--target", target)
			if err != nil {
				t.Fatalf("Execute error = %v, want nil (exit 0)", err)
			}
			if strings.TrimSpace(stdout) != probe.TargetHint {
				t.Errorf("stdout = %q, want %q", stdout, probe.TargetHint)
			}
		})
	}
}

func TestConfigCommandDefaults(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "config")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := &config.Config{}
	if err := yaml.Unmarshal([]byte(stdout), got); err != nil {
		t.Fatalf("unmarshal output: %v\n%s", err, stdout)
	}
	if got.GoBGP.Addr != "127.0.0.1:50051" {
		t.Errorf("gobgp.addr = %q, want default", got.GoBGP.Addr)
	}
	if !got.Preflight.Enabled {
		t.Error("preflight.enabled = false, want default true")
	}
}

func TestConfigCommandFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bgpwatch.yml")
	content := "target: frr\nfrr:\n  vtysh: /usr/local/bin/vtysh\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	stdout, _, err := execute(t, "config", "--config", path)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := &config.Config{}
	if err := yaml.Unmarshal([]byte(stdout), got); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if got.Target != "frr" || got.FRR.Vtysh != "/usr/local/bin/vtysh" {
		t.Errorf("config = %+v, want target frr with custom vtysh", got)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bgpwatch.yml")
	if err := os.WriteFile(path, []byte("preflight:\n  sudo: maybe\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, err := execute(t, "--config", path, "--target", "bird")
	if err == nil {
		t.Fatal("Execute returned nil for invalid config")
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(stdout, "bgpwatch ") {
		t.Errorf("stdout = %q, want bgpwatch prefix", stdout)
	}
}

func TestRIBSummaryUnreachable(t *testing.T) {
	t.Parallel()

	// Port 1 on loopback refuses connections.
	_, _, err := execute(t, "rib-summary", "--addr", "127.0.0.1:1")
	if err == nil {
		t.Fatal("Execute returned nil with an unreachable GoBGP")
	}
}

func TestRIBSummaryEmptyAddr(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bgpwatch.yml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// --addr given but empty overrides the valid configured address.
	_, _, err := execute(t, "rib-summary", "--config", path, "--addr", "")
	if err == nil || !strings.Contains(err.Error(), gobgp.ErrDialFailed.Error()) {
		t.Errorf("Execute error = %v, want dial failure", err)
	}
}

func TestRIBSummaryBadFormat(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "rib-summary", "--format", "xml")
	if !errors.Is(err, ribsummary.ErrUnsupportedFormat) {
		t.Errorf("Execute error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json logger output = %q", buf.String())
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "info", Format: "JSON"}, &buf).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("upper-case JSON logger output = %q", buf.String())
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "info", Format: "text"}, &buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text logger output = %q", buf.String())
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestNewGate(t *testing.T) {
	t.Parallel()

	logger := newLogger(config.LogConfig{Level: "error"}, &bytes.Buffer{})

	if _, ok := newGate(config.PreflightConfig{Enabled: false}, logger).(preflight.NopGate); !ok {
		t.Error("disabled preflight did not return NopGate")
	}

	g, ok := newGate(config.PreflightConfig{Enabled: true, Sudo: "never", Iptables: "iptables"}, logger).(*preflight.IptablesGate)
	if !ok {
		t.Fatal("enabled preflight did not return *IptablesGate")
	}
	if name, _ := g.Command(); name != "iptables" {
		t.Errorf("gate command = %q, want iptables", name)
	}
}

func TestNewAdapterCLITargets(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	logger := newLogger(config.LogConfig{Level: "error"}, &bytes.Buffer{})

	for _, target := range []probe.Target{probe.TargetFRR, probe.TargetBIRD, probe.TargetOpenBGPD, probe.TargetGoBGP} {
		a, closeAdapter, err := newAdapter(cfg, target, logger)
		if err != nil {
			t.Fatalf("newAdapter(%s): %v", target, err)
		}
		if a.Name() != string(target) {
			t.Errorf("adapter name = %q, want %q", a.Name(), target)
		}
		closeAdapter()
	}
}
