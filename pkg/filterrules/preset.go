package filterrules

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Orochimarufan/cdev/pkg/device"
	"github.com/Orochimarufan/cdev/pkg/rules"
)

// sourceCondition matches the event source: SOURCE=="udev".
func sourceCondition(name, arg string, op *rules.CompareOp, value string) (rules.Entry, error) {
	if arg != "" {
		return nil, fmt.Errorf("condition %s takes no argument", name)
	}
	return rules.NewContextCondition(name, op, value, func(ctx rules.Context) (string, bool) {
		return ctx.(*Context).Source, true
	})
}

// cenvCondition matches auxiliary per-device state: CENV{KEY}=="value".
// The hierarchy variant (CENVS) checks the device and its ancestors.
type cenvCondition struct {
	name      string
	key       string
	op        *rules.CompareOp
	rvalue    interface{}
	literal   string
	hierarchy bool
}

func newCENVCondition(hierarchy bool) rules.ConditionFactory {
	return func(name, arg string, op *rules.CompareOp, value string) (rules.Entry, error) {
		if arg == "" {
			return nil, fmt.Errorf("condition %s expects an argument", name)
		}
		rv, err := op.Compile(value)
		if err != nil {
			return nil, err
		}
		return &cenvCondition{name: name, key: arg, op: op, rvalue: rv, literal: value, hierarchy: hierarchy}, nil
	}
}

// Eval implements rules.Entry.
func (c *cenvCondition) Eval(ctx rules.Context) bool {
	fc := ctx.(*Context)

	dev := fc.Device
	seen := make(map[string]struct{})
	for dev != nil {
		if _, dup := seen[dev.Syspath()]; dup {
			return false
		}
		seen[dev.Syspath()] = struct{}{}

		v, ok := fc.envLookup(dev, c.key)
		if c.op.Test(v, ok, c.rvalue) {
			return true
		}
		if !c.hierarchy {
			return false
		}

		parent, ok := dev.Parent()
		if !ok {
			return false
		}
		dev = parent
	}
	return false
}

// String implements rules.Entry.
func (c *cenvCondition) String() string {
	return fmt.Sprintf("%s{%s}%s%q", c.name, c.key, c.op.Token(), c.literal)
}

// parseTarget maps the TARGET value to a result at parse time.
func parseTarget(value string) (interface{}, error) {
	switch strings.ToLower(value) {
	case "allow":
		return ResultAllow, nil
	case "deny":
		return ResultDeny, nil
	default:
		return nil, fmt.Errorf("unknown TARGET %q, want allow or deny", value)
	}
}

// targetAssignment records the decision: "=" ends the rule set, "+="
// keeps going so a later rule can override.
var targetAssignment = rules.OpAssignment(parseTarget, rules.Hooks{
	Assign: func(ctx rules.Context, value interface{}) {
		ctx.(*Context).SetResult(value.(Result))
	},
	Extend: func(ctx rules.Context, value interface{}) {
		ctx.(*Context).UpdateResult(value.(Result))
	},
})

// newCGroupAssignment validates the manager name against the registered
// set at parse time.
func newCGroupAssignment(managers []string) rules.AssignmentFactory {
	return rules.OpAssignment(
		func(value string) (interface{}, error) {
			name := strings.ToLower(value)
			for _, m := range managers {
				if name == m {
					return name, nil
				}
			}
			return nil, fmt.Errorf("unknown CGROUP manager %q", value)
		},
		rules.Hooks{
			Assign: func(ctx rules.Context, value interface{}) {
				ctx.(*Context).CGroup = value.(string)
			},
		})
}

// parseForward validates and canonicalizes a FORWARD set member.
func parseForward(value string) (string, error) {
	switch strings.ToLower(value) {
	case "env", "tags", "devlinks":
		return strings.ToUpper(value), nil
	default:
		return "", fmt.Errorf("unknown FORWARD value %q", value)
	}
}

// cenvAssignment persists a value for the device: CENV{KEY}="value".
// Devices without a stable ID cannot carry state; the write is skipped.
var cenvAssignment = rules.ParamSimpleAssignment(nil, func(ctx rules.Context, key string, value interface{}) {
	fc := ctx.(*Context)
	id, ok := fc.Device.ID()
	if !ok {
		return
	}
	if err := fc.Store.Set(fc.Ctx, id, key, value.(string)); err != nil {
		fc.Log.Error().Err(err).Str("device", id).Str("key", key).Msg("cenv write failed")
	}
})

// actionAssignment synthesizes a follow-up event: ACTION+="add". The
// optional argument selects what to emit, in the form "what" or
// "opt:opt::what".
func actionAssignment(name, arg string, op rules.AssignOp, value string) (rules.Entry, error) {
	if op != rules.OpExtend {
		return nil, fmt.Errorf("%s only supports the += operator", name)
	}

	spec := &EmitSpec{Action: value, Options: make(map[string]struct{})}
	if arg != "" {
		if optStr, what, found := strings.Cut(arg, "::"); found {
			spec.What = what
			for _, opt := range strings.Split(optStr, ":") {
				spec.Options[strings.ToLower(opt)] = struct{}{}
			}
		} else {
			spec.What = arg
		}
	}

	return &emitAssignment{spec: spec}, nil
}

type emitAssignment struct {
	spec *EmitSpec
}

// Eval implements rules.Entry.
func (a *emitAssignment) Eval(ctx rules.Context) bool {
	fc := ctx.(*Context)
	emit := *a.spec
	fc.Emit = &emit
	return true
}

// String implements rules.Entry.
func (a *emitAssignment) String() string {
	if a.spec.What != "" {
		return fmt.Sprintf("ACTION{%s}+=%q", a.spec.What, a.spec.Action)
	}
	return fmt.Sprintf("ACTION+=%q", a.spec.Action)
}

// NewPreset returns the filter-rule preset. managers lists the valid
// CGROUP assignment values (typically cgroups.Registry.Names()).
func NewPreset(logger zerolog.Logger, managers []string) *rules.Preset {
	return rules.NewPreset("base", logger).Extend("filter",
		map[string]rules.ConditionFactory{
			"SOURCE": sourceCondition,
			"CENV":   newCENVCondition(false),
			"CENVS":  newCENVCondition(true),
		},
		map[string]rules.AssignmentFactory{
			"TARGET":  targetAssignment,
			"CGROUP":  newCGroupAssignment(managers),
			"CENV":    cenvAssignment,
			"FORWARD": rules.SetAssignment(parseForward, func(ctx rules.Context) *device.StringSet {
				return ctx.(*Context).Forward
			}),
			"ACTION": actionAssignment,
		})
}
