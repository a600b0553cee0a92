package device

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Sysfs creates and caches devices backed by a sysfs tree. The registry is
// keyed by resolved syspath so that repeated lookups, including parent
// traversal, share one instance per device.
type Sysfs struct {
	root    string
	devRoot string
	log     zerolog.Logger

	mu       sync.Mutex
	registry map[string]*SysDevice
}

// NewSysfs returns a device factory rooted at root ("" means "/sys").
// Tests point root at a temporary directory.
func NewSysfs(root string, logger zerolog.Logger) *Sysfs {
	if root == "" {
		root = "/sys"
	}
	return &Sysfs{
		root:     strings.TrimRight(root, "/"),
		devRoot:  "/dev",
		log:      logger.With().Str("component", "sysfs").Logger(),
		registry: make(map[string]*SysDevice),
	}
}

// FromSyspath returns the device at the given sysfs path, resolving
// symlinks and reusing a registry entry when one exists.
func (s *Sysfs) FromSyspath(syspath string) (*SysDevice, error) {
	real, err := filepath.EvalSymlinks(syspath)
	if err != nil {
		real = filepath.Clean(syspath)
	}

	s.mu.Lock()
	if d, ok := s.registry[real]; ok {
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()

	d, err := s.newDevice(real)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.registry[real] = d
	s.mu.Unlock()
	return d, nil
}

// FromDevpath returns the device for a kernel device path ("/devices/...").
func (s *Sysfs) FromDevpath(devpath string) (*SysDevice, error) {
	return s.FromSyspath(s.root + devpath)
}

// FromProperties builds a device from an event property map, as carried by
// a uevent payload. DEVPATH is required; ACTION belongs to the event, not
// the device, and is dropped.
func (s *Sysfs) FromProperties(props map[string]string) (*SysDevice, error) {
	devpath, ok := props["DEVPATH"]
	if !ok {
		return nil, fmt.Errorf("device properties carry no DEVPATH")
	}

	d := s.blankDevice(s.root + devpath)
	for k, v := range props {
		if k == "ACTION" {
			continue
		}
		d.setUeventKey(k, v)
	}
	d.ueventLoaded = true

	s.mu.Lock()
	s.registry[d.syspath] = d
	s.mu.Unlock()
	return d, nil
}

// Invalidate drops the registry entry for a syspath. Called on remove
// events so a later add rebuilds the device from scratch.
func (s *Sysfs) Invalidate(syspath string) {
	s.mu.Lock()
	delete(s.registry, syspath)
	s.mu.Unlock()
}

// Walk visits every device below <root>/devices that carries a uevent
// file, in lexical order. Used for coldplug scans.
func (s *Sysfs) Walk(fn func(*SysDevice) error) error {
	base := s.root + "/devices"
	return filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			// sysfs entries can vanish mid-walk
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if _, err := os.Stat(filepath.Join(p, "uevent")); err != nil {
			return nil
		}
		d, err := s.FromSyspath(p)
		if err != nil {
			s.log.Warn().Err(err).Str("syspath", p).Msg("skipping device")
			return nil
		}
		return fn(d)
	})
}

func (s *Sysfs) newDevice(syspath string) (*SysDevice, error) {
	devpath := strings.TrimPrefix(syspath, s.root)
	if devpath == syspath {
		return nil, fmt.Errorf("syspath %s is outside %s", syspath, s.root)
	}
	if devpath == "" || devpath == "/" {
		return nil, fmt.Errorf("syspath %s is not a device path", syspath)
	}

	if strings.HasPrefix(devpath, "/devices/") {
		// devices require a uevent file
		if _, err := os.Stat(filepath.Join(syspath, "uevent")); err != nil {
			return nil, fmt.Errorf("device node without uevent: %s", syspath)
		}
	} else {
		info, err := os.Stat(syspath)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("not a directory: %s", syspath)
		}
	}

	return s.blankDevice(syspath), nil
}

func (s *Sysfs) blankDevice(syspath string) *SysDevice {
	devpath := strings.TrimRight(strings.TrimPrefix(syspath, s.root), "/")
	sysname := strings.ReplaceAll(path.Base(devpath), "!", "/")

	d := &SysDevice{
		fs:       s,
		syspath:  syspath,
		devpath:  devpath,
		sysname:  sysname,
		sysnum:   trailingDigits(sysname),
		props:    make(map[string]string),
		env:      make(map[string]string),
		attrs:    make(map[string]attrValue),
		tags:     NewStringSet(),
		devlinks: NewStringSet(),
	}
	d.props["DEVPATH"] = devpath
	d.props["KERNEL"] = path.Base(devpath)
	return d
}

func trailingDigits(s string) string {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	return s[i:]
}

type attrValue struct {
	value string
	ok    bool
}

// SysDevice is a Device backed by a sysfs tree. uevent properties, the
// subsystem link and attribute files are read lazily and cached.
type SysDevice struct {
	fs      *Sysfs
	syspath string
	devpath string
	sysname string
	sysnum  string

	mu    sync.Mutex
	props map[string]string
	env   map[string]string
	attrs map[string]attrValue

	subsystem    string
	subsysChecked bool
	devtype      string
	devnode      string
	devnodeMode  uint32

	major, minor uint32
	hasDevnum    bool
	ifindex      int
	hasIfindex   bool

	id        string
	idChecked bool

	tags     *StringSet
	devlinks *StringSet

	ueventLoaded bool
}

// Syspath implements Device.
func (d *SysDevice) Syspath() string { return d.syspath }

// Devpath implements Device.
func (d *SysDevice) Devpath() string { return d.devpath }

// Sysname is the kernel name of the device ("!" translated to "/").
func (d *SysDevice) Sysname() string { return d.sysname }

// Devnode is the device node path below /dev, or "" for devices without
// a node.
func (d *SysDevice) Devnode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadUevent()
	return d.devnode
}

// Property implements Device. Unknown keys trigger a uevent-file read
// before being reported absent; environment entries back properties.
func (d *SysDevice) Property(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.lookup(key); ok {
		return v, true
	}
	d.loadUevent()
	return d.lookup(key)
}

func (d *SysDevice) lookup(key string) (string, bool) {
	if v, ok := d.props[key]; ok {
		return v, true
	}
	v, ok := d.env[key]
	return v, ok
}

// Env implements Device.
func (d *SysDevice) Env(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.env[key]
	return v, ok
}

// SetEnv implements Device.
func (d *SysDevice) SetEnv(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.env[key] = value
}

// Sysattr implements Device. The value is read from the attribute file
// below the device's syspath; read failures are cached as absent.
func (d *SysDevice) Sysattr(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.attrs[name]; ok {
		return cached.value, cached.ok
	}

	var av attrValue
	data, err := os.ReadFile(filepath.Join(d.syspath, name))
	if err == nil {
		av = attrValue{value: strings.TrimRight(string(data), "\n"), ok: true}
	}
	d.attrs[name] = av
	return av.value, av.ok
}

// Subsystem implements Device. It is resolved from the subsystem link,
// falling back to the implicit names /module, /drivers and the
// class/bus/subsystem directories give their members.
func (d *SysDevice) Subsystem() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadSubsystem()
}

func (d *SysDevice) loadSubsystem() (string, bool) {
	if d.subsysChecked {
		return d.subsystem, d.subsystem != ""
	}
	d.subsysChecked = true

	if target, err := os.Readlink(filepath.Join(d.syspath, "subsystem")); err == nil {
		d.setSubsystem(path.Base(target))
	} else if strings.HasPrefix(d.devpath, "/module/") {
		d.setSubsystem("module")
	} else if strings.HasPrefix(d.devpath, "/drivers/") {
		d.setSubsystem("drivers")
	} else if strings.HasPrefix(d.devpath, "/subsystem/") ||
		strings.HasPrefix(d.devpath, "/class/") ||
		strings.HasPrefix(d.devpath, "/bus/") {
		d.setSubsystem("subsystem")
	}
	return d.subsystem, d.subsystem != ""
}

func (d *SysDevice) setSubsystem(subsystem string) {
	d.subsystem = subsystem
	d.subsysChecked = true
	d.props["SUBSYSTEM"] = subsystem
}

// Devtype implements Device.
func (d *SysDevice) Devtype() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadUevent()
	return d.devtype, d.devtype != ""
}

// Devnum implements Device.
func (d *SysDevice) Devnum() (uint32, uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadUevent()
	return d.major, d.minor, d.hasDevnum
}

// Ifindex returns the network interface index, if the device has one.
func (d *SysDevice) Ifindex() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadUevent()
	return d.ifindex, d.hasIfindex
}

// ID implements Device.
func (d *SysDevice) ID() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.idChecked {
		return d.id, d.id != ""
	}
	d.idChecked = true

	subsystem, ok := d.loadSubsystem()
	if !ok {
		return "", false
	}
	d.loadUevent()

	switch {
	case d.hasDevnum && d.major > 0:
		kind := "c"
		if subsystem == "block" {
			kind = "b"
		}
		d.id = fmt.Sprintf("%s%d:%d", kind, d.major, d.minor)
	case d.hasIfindex:
		d.id = fmt.Sprintf("n%d", d.ifindex)
	default:
		// sysname has "!" translated; the database identity keeps the
		// raw name from the devpath
		d.id = fmt.Sprintf("+%s:%s", subsystem, path.Base(d.devpath))
	}
	return d.id, true
}

// Tags implements Device.
func (d *SysDevice) Tags() *StringSet { return d.tags }

// Devlinks implements Device.
func (d *SysDevice) Devlinks() *StringSet { return d.devlinks }

// Parent implements Device. The parent is the nearest ancestor devpath
// with a device behind it; top-level directories like /devices or /class
// themselves have no parent.
func (d *SysDevice) Parent() (Device, bool) {
	devpath := d.devpath
	for strings.Contains(devpath[1:], "/") {
		devpath = devpath[:strings.LastIndex(devpath, "/")]
		if !strings.Contains(devpath[1:], "/") {
			// Single-component paths are sysfs structure, not devices.
			break
		}
		parent, err := d.fs.FromDevpath(devpath)
		if err == nil {
			return parent, true
		}
	}
	return nil, false
}

// loadUevent reads the device's uevent file once. Callers hold d.mu.
func (d *SysDevice) loadUevent() {
	if d.ueventLoaded {
		return
	}
	d.ueventLoaded = true

	data, err := os.ReadFile(filepath.Join(d.syspath, "uevent"))
	if err != nil {
		// Missing or unreadable uevent files happen on live systems
		// (permissions on /sys/bus/usb/uevent, device races); the
		// device simply has no uevent properties then.
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		d.setUeventKey(key, value)
	}
}

// setUeventKey applies one KEY=VALUE pair from a uevent file or event
// payload. Callers hold d.mu (or own the device exclusively).
func (d *SysDevice) setUeventKey(key, value string) {
	switch key {
	case "DEVTYPE":
		d.devtype = value
	case "IFINDEX":
		if n, err := strconv.Atoi(value); err == nil {
			d.ifindex = n
			d.hasIfindex = true
		}
	case "DEVNAME":
		if !strings.HasPrefix(value, "/") {
			d.devnode = d.fs.devRoot + "/" + value
		} else {
			d.devnode = value
		}
		d.props[key] = d.devnode
		return
	case "MAJOR":
		if n, err := strconv.ParseUint(value, 10, 32); err == nil {
			d.major = uint32(n)
			d.hasDevnum = true
		}
	case "MINOR":
		if n, err := strconv.ParseUint(value, 10, 32); err == nil {
			d.minor = uint32(n)
			d.hasDevnum = true
		}
	case "DEVMODE":
		if n, err := strconv.ParseUint(value, 8, 32); err == nil {
			d.devnodeMode = uint32(n)
		}
	case "SUBSYSTEM":
		d.setSubsystem(value)
		return
	}
	d.props[key] = value
}
