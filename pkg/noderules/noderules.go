package noderules

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Orochimarufan/cdev/pkg/device"
	"github.com/Orochimarufan/cdev/pkg/rules"
)

// Context is the execution context for node rules. User, Group and Mode
// stay at their zero values unless a rule assigns them; ModeSet
// distinguishes "mode 0" from "no MODE rule matched".
type Context struct {
	rules.Base

	User    string
	Group   string
	Mode    uint32
	ModeSet bool

	modified map[string]device.Device
}

// NewContext creates a node-rule context for one event.
func NewContext(dev device.Device, action string, logger zerolog.Logger) *Context {
	return &Context{
		Base:     *rules.NewBase(dev, action, logger),
		modified: make(map[string]device.Device),
	}
}

// DeviceModified records that a rule changed persistent device state
// (environment, tags or symlinks), so the caller knows what to write
// back.
func (c *Context) DeviceModified(dev device.Device) {
	c.modified[dev.Syspath()] = dev
}

// Modified returns the devices touched by ENV/TAG/SYMLINK assignments.
func (c *Context) Modified() []device.Device {
	devs := make([]device.Device, 0, len(c.modified))
	for _, dev := range c.modified {
		devs = append(devs, dev)
	}
	return devs
}

// parseMode parses an octal node mode at rule-parse time.
func parseMode(value string) (interface{}, error) {
	mode, err := strconv.ParseUint(value, 8, 32)
	if err != nil {
		return nil, fmt.Errorf("mode must be an octal number, got %q", value)
	}
	return uint32(mode), nil
}

var userAssignment = rules.SimpleAssignment(nil, func(ctx rules.Context, value interface{}) {
	ctx.(*Context).User = value.(string)
})

var groupAssignment = rules.SimpleAssignment(nil, func(ctx rules.Context, value interface{}) {
	ctx.(*Context).Group = value.(string)
})

var modeAssignment = rules.SimpleAssignment(parseMode, func(ctx rules.Context, value interface{}) {
	c := ctx.(*Context)
	c.Mode = value.(uint32)
	c.ModeSet = true
})

var envAssignment = rules.ParamSimpleAssignment(nil, func(ctx rules.Context, key string, value interface{}) {
	c := ctx.(*Context)
	c.Device.SetEnv(key, value.(string))
	c.DeviceModified(c.Device)
})

func tagSet(ctx rules.Context) *device.StringSet {
	c := ctx.(*Context)
	c.DeviceModified(c.Device)
	return c.Device.Tags()
}

func devlinkSet(ctx rules.Context) *device.StringSet {
	c := ctx.(*Context)
	c.DeviceModified(c.Device)
	return c.Device.Devlinks()
}

// NewPreset returns the node-rule preset: the base names plus
// USER/GROUP/MODE/ENV/TAG/SYMLINK assignments.
func NewPreset(logger zerolog.Logger) *rules.Preset {
	return rules.NewPreset("base", logger).Extend("node",
		nil,
		map[string]rules.AssignmentFactory{
			"USER":    userAssignment,
			"GROUP":   groupAssignment,
			"MODE":    modeAssignment,
			"ENV":     envAssignment,
			"TAG":     rules.SetAssignment(nil, tagSet),
			"SYMLINK": rules.SetAssignment(nil, devlinkSet),
		})
}
