package device

import (
	"fmt"
	"path"
	"strings"
)

// Synthetic is an in-memory Device. It backs tests and the "cdevd test"
// command, where events are described on the command line instead of
// arriving from the kernel.
type Synthetic struct {
	devpath string

	props map[string]string
	env   map[string]string
	attrs map[string]string

	subsystem string
	devtype   string

	major, minor uint32
	hasDevnum    bool
	ifindex      int
	hasIfindex   bool

	tags     *StringSet
	devlinks *StringSet

	parent *Synthetic
}

// NewSynthetic creates a synthetic device for the given devpath. The
// DEVPATH and KERNEL properties are derived from the path, matching what
// a sysfs-backed device would report.
func NewSynthetic(devpath string) *Synthetic {
	d := &Synthetic{
		devpath:  strings.TrimRight(devpath, "/"),
		props:    make(map[string]string),
		env:      make(map[string]string),
		attrs:    make(map[string]string),
		tags:     NewStringSet(),
		devlinks: NewStringSet(),
	}
	d.props["DEVPATH"] = d.devpath
	d.props["KERNEL"] = path.Base(d.devpath)
	return d
}

// WithProperty sets a device property and returns the device.
func (d *Synthetic) WithProperty(key, value string) *Synthetic {
	d.props[key] = value
	return d
}

// WithEnv sets an environment entry and returns the device.
func (d *Synthetic) WithEnv(key, value string) *Synthetic {
	d.env[key] = value
	return d
}

// WithSysattr sets a sysfs attribute value and returns the device.
func (d *Synthetic) WithSysattr(name, value string) *Synthetic {
	d.attrs[name] = value
	return d
}

// WithSubsystem sets the subsystem and the SUBSYSTEM property.
func (d *Synthetic) WithSubsystem(subsystem string) *Synthetic {
	d.subsystem = subsystem
	d.props["SUBSYSTEM"] = subsystem
	return d
}

// WithDevtype sets the devtype and the DEVTYPE property.
func (d *Synthetic) WithDevtype(devtype string) *Synthetic {
	d.devtype = devtype
	d.props["DEVTYPE"] = devtype
	return d
}

// WithDevnum sets the device's major and minor numbers.
func (d *Synthetic) WithDevnum(major, minor uint32) *Synthetic {
	d.major, d.minor = major, minor
	d.hasDevnum = true
	return d
}

// WithIfindex sets the network interface index.
func (d *Synthetic) WithIfindex(ifindex int) *Synthetic {
	d.ifindex = ifindex
	d.hasIfindex = true
	return d
}

// WithTag adds a tag and returns the device.
func (d *Synthetic) WithTag(tag string) *Synthetic {
	d.tags.Add(tag)
	return d
}

// WithParent sets the parent device and returns the device.
func (d *Synthetic) WithParent(parent *Synthetic) *Synthetic {
	d.parent = parent
	return d
}

// Syspath implements Device.
func (d *Synthetic) Syspath() string { return "/sys" + d.devpath }

// Devpath implements Device.
func (d *Synthetic) Devpath() string { return d.devpath }

// ID implements Device.
func (d *Synthetic) ID() (string, bool) {
	switch {
	case d.hasDevnum && d.major > 0:
		kind := "c"
		if d.subsystem == "block" {
			kind = "b"
		}
		return fmt.Sprintf("%s%d:%d", kind, d.major, d.minor), true
	case d.hasIfindex:
		return fmt.Sprintf("n%d", d.ifindex), true
	case d.subsystem != "":
		return fmt.Sprintf("+%s:%s", d.subsystem, path.Base(d.devpath)), true
	default:
		return "", false
	}
}

// Property implements Device. Environment entries shadow nothing: like a
// database-backed device, a key missing from the properties falls back to
// the environment.
func (d *Synthetic) Property(key string) (string, bool) {
	if v, ok := d.props[key]; ok {
		return v, true
	}
	v, ok := d.env[key]
	return v, ok
}

// Env implements Device.
func (d *Synthetic) Env(key string) (string, bool) {
	v, ok := d.env[key]
	return v, ok
}

// SetEnv implements Device.
func (d *Synthetic) SetEnv(key, value string) {
	d.env[key] = value
}

// Sysattr implements Device.
func (d *Synthetic) Sysattr(name string) (string, bool) {
	v, ok := d.attrs[name]
	return v, ok
}

// Subsystem implements Device.
func (d *Synthetic) Subsystem() (string, bool) {
	return d.subsystem, d.subsystem != ""
}

// Devtype implements Device.
func (d *Synthetic) Devtype() (string, bool) {
	return d.devtype, d.devtype != ""
}

// Devnum implements Device.
func (d *Synthetic) Devnum() (uint32, uint32, bool) {
	return d.major, d.minor, d.hasDevnum
}

// Tags implements Device.
func (d *Synthetic) Tags() *StringSet { return d.tags }

// Devlinks implements Device.
func (d *Synthetic) Devlinks() *StringSet { return d.devlinks }

// Parent implements Device.
func (d *Synthetic) Parent() (Device, bool) {
	if d.parent == nil {
		return nil, false
	}
	return d.parent, true
}
