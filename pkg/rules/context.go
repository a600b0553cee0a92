package rules

import (
	"github.com/rs/zerolog"

	"github.com/Orochimarufan/cdev/pkg/device"
)

// Context is the per-event execution context a rule set evaluates
// against. Presets define their own context types by embedding Base and
// adding fields; the engine only ever touches the embedded base. The
// accessor is named RulesBase so it does not collide with the embedded
// field, which would otherwise shadow the promoted method.
type Context interface {
	RulesBase() *Base
}

// Base holds the flow-control state shared by every execution context:
// the device under evaluation, the event action, the debug flag, and the
// done/goto state driving rule-set execution. A Base is exclusively owned
// by one evaluation and must not be reused across events.
type Base struct {
	Device device.Device
	Action string

	// EventID identifies the event in logs and traces.
	EventID string

	// Log receives per-rule debug output when Debug is set.
	Log zerolog.Logger

	// Debug logs the failing entry of the current rule. It resets after
	// every rule to keep a stray _DEBUG="1" from flooding the log.
	Debug bool

	// Aborted reports that the last rule set stopped at an unresolvable
	// goto label. It resets when the next rule set begins.
	Aborted bool

	done      bool
	gotoLabel string
	hasGoto   bool
}

// NewBase returns a base context for one event.
func NewBase(dev device.Device, action string, logger zerolog.Logger) *Base {
	return &Base{Device: dev, Action: action, Log: logger}
}

// RulesBase implements Context, so *Base (and anything embedding it) is
// a valid execution context.
func (b *Base) RulesBase() *Base { return b }

// Goto requests a jump to the named label once the current rule finishes.
func (b *Base) Goto(label string) {
	b.gotoLabel = label
	b.hasGoto = true
}

// EndRuleSet stops the current rule set after the current rule.
func (b *Base) EndRuleSet() {
	b.done = true
}

// begin resets the done state at the start of each rule set.
func (b *Base) begin() {
	b.done = false
	b.Aborted = false
}

func (b *Base) finished() bool {
	return b.done
}

// takeGoto clears and returns the pending goto label.
func (b *Base) takeGoto() (string, bool) {
	if !b.hasGoto {
		return "", false
	}
	label := b.gotoLabel
	b.gotoLabel = ""
	b.hasGoto = false
	return label, true
}
