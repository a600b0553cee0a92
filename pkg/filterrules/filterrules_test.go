package filterrules

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Orochimarufan/cdev/pkg/device"
	"github.com/Orochimarufan/cdev/pkg/rules"
	"github.com/Orochimarufan/cdev/pkg/stores"
)

// The embedded rules.Base field must not shadow the promoted accessor.
var _ rules.Context = (*Context)(nil)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func parse(t *testing.T, text string) *rules.RuleSet {
	t.Helper()
	rs, err := NewPreset(testLogger(), []string{"lxc"}).Parse(strings.NewReader(text), "filter.rules")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return rs
}

func newContext(dev device.Device, action, source string, store stores.Store) *Context {
	if store == nil {
		store = stores.NewMemoryStore()
	}
	return NewContext(context.Background(), dev, action, source, store, testLogger())
}

func blockDevice(kernel string) *device.Synthetic {
	return device.NewSynthetic("/devices/pci0000:00/host0/"+kernel).
		WithSubsystem("block").
		WithDevnum(8, 0)
}

func TestTargetAssignStops(t *testing.T) {
	rs := parse(t, `
SUBSYSTEM=="block", TARGET="allow"
SUBSYSTEM=="block", TARGET="deny"
`)

	ctx := newContext(blockDevice("sda"), "add", SourceUdev, nil)
	rs.Exec(ctx)
	if ctx.Result != ResultAllow {
		t.Errorf("result = %v, want allow: TARGET= must end the rule set", ctx.Result)
	}
}

func TestTargetExtendContinues(t *testing.T) {
	rs := parse(t, `
SUBSYSTEM=="block", TARGET+="allow"
KERNEL=="sda", TARGET+="deny"
`)

	ctx := newContext(blockDevice("sda"), "add", SourceUdev, nil)
	rs.Exec(ctx)
	if ctx.Result != ResultDeny {
		t.Errorf("result = %v, want deny: TARGET+= must keep processing", ctx.Result)
	}

	ctx = newContext(blockDevice("sdb"), "add", SourceUdev, nil)
	rs.Exec(ctx)
	if ctx.Result != ResultAllow {
		t.Errorf("result = %v, want allow", ctx.Result)
	}
}

func TestTargetValueValidation(t *testing.T) {
	_, err := NewPreset(testLogger(), nil).Parse(strings.NewReader(`TARGET="maybe"`), "filter.rules")
	if err == nil {
		t.Fatal("TARGET=maybe parsed without error")
	}
}

func TestSourceCondition(t *testing.T) {
	rs := parse(t, `SOURCE=="sys", TARGET="deny"`)

	ctx := newContext(blockDevice("sda"), "add", SourceSys, nil)
	rs.Exec(ctx)
	if ctx.Result != ResultDeny {
		t.Error("SOURCE==sys did not match a coldplug event")
	}

	ctx = newContext(blockDevice("sda"), "add", SourceUdev, nil)
	rs.Exec(ctx)
	if ctx.Result != ResultUnset {
		t.Error("SOURCE==sys matched a udev event")
	}
}

func TestCGroupAssignment(t *testing.T) {
	rs := parse(t, `SUBSYSTEM=="block", CGROUP="lxc"`)

	ctx := newContext(blockDevice("sda"), "add", SourceUdev, nil)
	rs.Exec(ctx)
	if ctx.CGroup != "lxc" {
		t.Errorf("cgroup = %q, want lxc", ctx.CGroup)
	}

	if _, err := NewPreset(testLogger(), []string{"lxc"}).Parse(strings.NewReader(`CGROUP="systemd"`), "f.rules"); err == nil {
		t.Error("unknown cgroup manager parsed without error")
	}
	if _, err := NewPreset(testLogger(), []string{"lxc"}).Parse(strings.NewReader(`CGROUP+="lxc"`), "f.rules"); err == nil {
		t.Error("CGROUP+= parsed without error")
	}
}

func TestForwardSet(t *testing.T) {
	rs := parse(t, `SUBSYSTEM=="block", FORWARD+="tags", FORWARD-="devlinks"`)

	ctx := newContext(blockDevice("sda"), "add", SourceUdev, nil)
	rs.Exec(ctx)

	fwd := ctx.Forward
	if !fwd.Has("ENV") || !fwd.Has("TAGS") || fwd.Has("DEVLINKS") {
		t.Errorf("forward = %v", fwd.Values())
	}

	if _, err := NewPreset(testLogger(), nil).Parse(strings.NewReader(`FORWARD+="everything"`), "f.rules"); err == nil {
		t.Error("unknown FORWARD value parsed without error")
	}
}

func TestCENVRoundTrip(t *testing.T) {
	store := stores.NewMemoryStore()

	// An add event claims the device; a later event sees the claim.
	claim := parse(t, `ACTION=="add", CENV{OWNER}="ct1"`)
	check := parse(t, `CENV{OWNER}=="ct1", TARGET="allow"`)

	dev := blockDevice("sda")
	claimCtx := newContext(dev, "add", SourceUdev, store)
	claim.Exec(claimCtx)

	id, _ := dev.ID()
	if v, ok, _ := store.Get(context.Background(), id, "OWNER"); !ok || v != "ct1" {
		t.Fatalf("store OWNER = (%q, %v), want ct1", v, ok)
	}

	checkCtx := newContext(dev, "change", SourceUdev, store)
	check.Exec(checkCtx)
	if checkCtx.Result != ResultAllow {
		t.Error("CENV condition did not see the stored value")
	}

	// A different device with its own ID sees nothing.
	other := device.NewSynthetic("/devices/pci0000:00/host0/sdb").
		WithSubsystem("block").
		WithDevnum(8, 16)
	otherCtx := newContext(other, "change", SourceUdev, store)
	check.Exec(otherCtx)
	if otherCtx.Result != ResultUnset {
		t.Error("CENV condition matched another device's state")
	}
}

func TestCENVSWalksHierarchy(t *testing.T) {
	store := stores.NewMemoryStore()

	hub := device.NewSynthetic("/devices/pci0000:00/usb1").
		WithSubsystem("usb").
		WithDevnum(189, 0)
	disk := blockDevice("sda").WithParent(hub)

	hubID, _ := hub.ID()
	if err := store.Set(context.Background(), hubID, "OWNER", "ct1"); err != nil {
		t.Fatal(err)
	}

	rs := parse(t, `CENVS{OWNER}=="ct1", TARGET="allow"`)
	ctx := newContext(disk, "add", SourceUdev, store)
	rs.Exec(ctx)
	if ctx.Result != ResultAllow {
		t.Error("CENVS did not find the ancestor's state")
	}

	// The plain CENV form must not walk.
	rs = parse(t, `CENV{OWNER}=="ct1", TARGET="allow"`)
	ctx = newContext(disk, "add", SourceUdev, store)
	rs.Exec(ctx)
	if ctx.Result != ResultUnset {
		t.Error("CENV walked the hierarchy")
	}
}

func TestCENVDeviceWithoutID(t *testing.T) {
	store := stores.NewMemoryStore()
	rs := parse(t, `CENV{OWNER}="ct1"`)

	// No devnum, ifindex or subsystem: the device has no stable ID and
	// the write is skipped rather than stored under an empty key.
	bare := device.NewSynthetic("/devices/virtual/anon")
	ctx := newContext(bare, "add", SourceUdev, store)
	rs.Exec(ctx)
}

func TestActionEmit(t *testing.T) {
	rs := parse(t, `SUBSYSTEM=="block", ACTION+="change"`)

	ctx := newContext(blockDevice("sda"), "add", SourceUdev, nil)
	rs.Exec(ctx)
	if ctx.Emit == nil || ctx.Emit.Action != "change" {
		t.Fatalf("emit = %+v, want change", ctx.Emit)
	}

	rs = parse(t, `ACTION{now:queue::node}+="add"`)
	ctx = newContext(blockDevice("sda"), "add", SourceUdev, nil)
	rs.Exec(ctx)
	if ctx.Emit == nil || ctx.Emit.What != "node" {
		t.Fatalf("emit = %+v, want what=node", ctx.Emit)
	}
	for _, opt := range []string{"now", "queue"} {
		if _, ok := ctx.Emit.Options[opt]; !ok {
			t.Errorf("option %q missing from %v", opt, ctx.Emit.Options)
		}
	}

	if _, err := NewPreset(testLogger(), nil).Parse(strings.NewReader(`ACTION="add"`), "f.rules"); err == nil {
		t.Error("ACTION= parsed without error, only += is valid")
	}
}

func TestActionConditionStillWorks(t *testing.T) {
	// ACTION resolves to the base condition with comparison operators
	// and to the emit assignment with +=.
	rs := parse(t, `ACTION=="remove", TARGET="deny"`)

	ctx := newContext(blockDevice("sda"), "remove", SourceUdev, nil)
	rs.Exec(ctx)
	if ctx.Result != ResultDeny {
		t.Error("ACTION condition did not match")
	}
}
