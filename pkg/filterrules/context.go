package filterrules

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Orochimarufan/cdev/pkg/device"
	"github.com/Orochimarufan/cdev/pkg/rules"
	"github.com/Orochimarufan/cdev/pkg/stores"
)

// Event sources a SOURCE condition can match.
const (
	// SourceSys marks events generated by walking sysfs (coldplug).
	SourceSys = "sys"
	// SourceUdev marks events received from the udev monitor.
	SourceUdev = "udev"
	// SourceKernel marks raw kernel uevents.
	SourceKernel = "kernel"
)

// Result is the filtering outcome for one event.
type Result uint8

const (
	// ResultUnset means no TARGET rule matched; the caller applies its
	// default policy.
	ResultUnset Result = iota
	// ResultAllow forwards the event.
	ResultAllow
	// ResultDeny suppresses the event.
	ResultDeny
)

// String returns the result's rule-file spelling.
func (r Result) String() string {
	switch r {
	case ResultAllow:
		return "allow"
	case ResultDeny:
		return "deny"
	default:
		return "unset"
	}
}

// EmitSpec describes a follow-up event requested by an ACTION+=
// assignment: re-run the current device with a different action.
type EmitSpec struct {
	// Action is the event verb of the synthesized event.
	Action string
	// What optionally names what to emit, from the argument's
	// "options::what" form.
	What string
	// Options holds the lowercased option flags preceding "::" in the
	// argument.
	Options map[string]struct{}
}

// Context is the execution context for filter rules.
type Context struct {
	rules.Base

	// Ctx bounds store I/O performed by CENV conditions and
	// assignments.
	Ctx context.Context

	// Source is where the event came from (SourceSys/Udev/Kernel).
	Source string

	// Result is the filtering decision. TARGET= sets it and ends the
	// rule set; TARGET+= sets it and continues.
	Result Result

	// CGroup names the control-group manager to apply device rules
	// with, or "" for none.
	CGroup string

	// Forward selects what is forwarded along with an allowed event.
	Forward *device.StringSet

	// Emit is the pending follow-up event, if any. Only one can be
	// pending per evaluation; a later ACTION+= replaces it.
	Emit *EmitSpec

	// Store is the per-device auxiliary state CENV reads and writes.
	Store stores.Store
}

// NewContext creates a filter-rule context for one event.
func NewContext(ctx context.Context, dev device.Device, action, source string, store stores.Store, logger zerolog.Logger) *Context {
	fc := &Context{
		Base:    *rules.NewBase(dev, action, logger),
		Ctx:     ctx,
		Source:  source,
		Forward: device.NewStringSet(),
		Store:   store,
	}
	fc.Forward.Add("ENV")
	fc.Forward.Add("DEVLINKS")
	return fc
}

// SetResult records the decision and ends the rule set.
func (c *Context) SetResult(r Result) {
	c.Result = r
	c.EndRuleSet()
}

// UpdateResult records the decision but keeps processing rules.
func (c *Context) UpdateResult(r Result) {
	c.Result = r
}

// envLookup reads a CENV value for one device from the store. Store
// failures degrade to an absent value, matching how unreadable sysfs
// attributes behave.
func (c *Context) envLookup(dev device.Device, key string) (string, bool) {
	id, ok := dev.ID()
	if !ok {
		return "", false
	}
	v, ok, err := c.Store.Get(c.Ctx, id, key)
	if err != nil {
		c.Log.Debug().Err(err).Str("device", id).Str("key", key).Msg("cenv lookup failed")
		return "", false
	}
	return v, ok
}
