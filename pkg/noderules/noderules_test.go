package noderules

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Orochimarufan/cdev/pkg/device"
	"github.com/Orochimarufan/cdev/pkg/rules"
)

// The embedded rules.Base field must not shadow the promoted accessor.
var _ rules.Context = (*Context)(nil)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func parse(t *testing.T, text string) *rules.RuleSet {
	t.Helper()
	rs, err := NewPreset(testLogger()).Parse(strings.NewReader(text), "node.rules")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return rs
}

func TestNodePermissions(t *testing.T) {
	rs := parse(t, `ACTION=="add", SUBSYSTEM=="block", KERNEL=="sd*", MODE="0660", GROUP="disk"`)

	disk := device.NewSynthetic("/devices/pci0000:00/host0/sda").WithSubsystem("block")
	ctx := NewContext(disk, "add", testLogger())
	rs.Exec(ctx)

	if !ctx.ModeSet || ctx.Mode != 0o660 {
		t.Errorf("mode = %o (set=%v), want 0660", ctx.Mode, ctx.ModeSet)
	}
	if ctx.Group != "disk" {
		t.Errorf("group = %q, want %q", ctx.Group, "disk")
	}

	// A non-matching device leaves everything untouched.
	nic := device.NewSynthetic("/devices/pci0000:00/eth0").WithSubsystem("net")
	ctx = NewContext(nic, "add", testLogger())
	rs.Exec(ctx)

	if ctx.ModeSet || ctx.Group != "" || ctx.User != "" {
		t.Errorf("non-matching device got mode/group applied: %+v", ctx)
	}
}

func TestModeParseError(t *testing.T) {
	_, err := NewPreset(testLogger()).Parse(strings.NewReader(`MODE="066z"`), "node.rules")
	if err == nil {
		t.Fatal("non-octal MODE value parsed without error")
	}
	if _, ok := rules.AsSyntaxError(err); !ok {
		t.Fatalf("error = %T, want *rules.SyntaxError", err)
	}
	if !strings.Contains(err.Error(), "octal") {
		t.Errorf("error %q does not mention octal", err.Error())
	}
}

func TestModeZeroIsSet(t *testing.T) {
	rs := parse(t, `MODE="0"`)

	ctx := NewContext(device.NewSynthetic("/devices/virtual/mem/null"), "add", testLogger())
	rs.Exec(ctx)
	if !ctx.ModeSet || ctx.Mode != 0 {
		t.Errorf("mode = %o (set=%v), want 0 and set", ctx.Mode, ctx.ModeSet)
	}
}

func TestEnvAssignment(t *testing.T) {
	rs := parse(t, `SUBSYSTEM=="net", ENV{ID_CONTAINER}="ct1"`)

	nic := device.NewSynthetic("/devices/pci0000:00/eth0").WithSubsystem("net")
	ctx := NewContext(nic, "add", testLogger())
	rs.Exec(ctx)

	if v, ok := nic.Env("ID_CONTAINER"); !ok || v != "ct1" {
		t.Errorf("ID_CONTAINER = (%q, %v), want ct1", v, ok)
	}
	if len(ctx.Modified()) != 1 {
		t.Errorf("modified devices = %d, want 1", len(ctx.Modified()))
	}
}

func TestEnvRequiresKey(t *testing.T) {
	_, err := NewPreset(testLogger()).Parse(strings.NewReader(`ENV="x"`), "node.rules")
	if err == nil {
		t.Fatal("ENV assignment without a key parsed without error")
	}
}

func TestTagAndSymlink(t *testing.T) {
	rs := parse(t, `
KERNEL=="sda", TAG+="systemd", SYMLINK+="disk/by-rule/root"
KERNEL=="sda", TAG+="container", TAG-="systemd"
`)

	disk := device.NewSynthetic("/devices/pci0000:00/host0/sda").WithTag("seen")
	ctx := NewContext(disk, "add", testLogger())
	rs.Exec(ctx)

	tags := disk.Tags()
	if !tags.Has("seen") || !tags.Has("container") || tags.Has("systemd") {
		t.Errorf("tags = %v", tags.Values())
	}
	if !disk.Devlinks().Has("disk/by-rule/root") {
		t.Errorf("devlinks = %v", disk.Devlinks().Values())
	}
}

func TestUserGroupOnlyAssign(t *testing.T) {
	for _, text := range []string{`USER+="root"`, `GROUP-="disk"`} {
		if _, err := NewPreset(testLogger()).Parse(strings.NewReader(text), "node.rules"); err == nil {
			t.Errorf("%s parsed without error", text)
		}
	}
}
