package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestSyntheticID(t *testing.T) {
	tests := []struct {
		name string
		dev  *Synthetic
		id   string
		ok   bool
	}{
		{
			name: "block device",
			dev:  NewSynthetic("/devices/pci0/sda").WithSubsystem("block").WithDevnum(8, 0),
			id:   "b8:0",
			ok:   true,
		},
		{
			name: "char device",
			dev:  NewSynthetic("/devices/virtual/tty/tty0").WithSubsystem("tty").WithDevnum(4, 0),
			id:   "c4:0",
			ok:   true,
		},
		{
			name: "network interface",
			dev:  NewSynthetic("/devices/virtual/net/eth0").WithSubsystem("net").WithIfindex(2),
			id:   "n2",
			ok:   true,
		},
		{
			name: "subsystem fallback",
			dev:  NewSynthetic("/devices/pci0/0000:00:01.0").WithSubsystem("pci"),
			id:   "+pci:0000:00:01.0",
			ok:   true,
		},
		{
			name: "zero major is not a node",
			dev:  NewSynthetic("/devices/x").WithSubsystem("misc").WithDevnum(0, 5),
			id:   "+misc:x",
			ok:   true,
		},
		{
			name: "no identity",
			dev:  NewSynthetic("/devices/unknown"),
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := tt.dev.ID()
			if ok != tt.ok || id != tt.id {
				t.Errorf("ID() = (%q, %v), want (%q, %v)", id, ok, tt.id, tt.ok)
			}
		})
	}
}

func TestSyntheticDerivedProperties(t *testing.T) {
	d := NewSynthetic("/devices/pci0/block/sda/")

	if v, _ := d.Property("DEVPATH"); v != "/devices/pci0/block/sda" {
		t.Errorf("DEVPATH = %q", v)
	}
	if v, _ := d.Property("KERNEL"); v != "sda" {
		t.Errorf("KERNEL = %q", v)
	}
	if d.Syspath() != "/sys/devices/pci0/block/sda" {
		t.Errorf("Syspath = %q", d.Syspath())
	}
}

func TestSyntheticEnvFallback(t *testing.T) {
	d := NewSynthetic("/devices/x").WithEnv("ID_SERIAL", "abc123")

	if v, ok := d.Property("ID_SERIAL"); !ok || v != "abc123" {
		t.Errorf("Property fell through env: (%q, %v)", v, ok)
	}
	d.SetEnv("ID_SERIAL", "xyz")
	if v, _ := d.Env("ID_SERIAL"); v != "xyz" {
		t.Errorf("Env after SetEnv = %q", v)
	}
}

// writeSysDevice lays out one device directory under root.
func writeSysDevice(t *testing.T, root, devpath, uevent string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(devpath[1:]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "uevent"), []byte(uevent), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func testSysfs(t *testing.T) (*Sysfs, string) {
	t.Helper()
	root := t.TempDir()
	return NewSysfs(root, zerolog.Nop()), root
}

func TestSysDeviceUevent(t *testing.T) {
	fs, root := testSysfs(t)
	writeSysDevice(t, root, "/devices/pci0/block/sda",
		"MAJOR=8\nMINOR=0\nDEVNAME=sda\nDEVTYPE=disk\nSUBSYSTEM=block\n")

	d, err := fs.FromDevpath("/devices/pci0/block/sda")
	if err != nil {
		t.Fatal(err)
	}

	if major, minor, ok := d.Devnum(); !ok || major != 8 || minor != 0 {
		t.Errorf("Devnum = (%d, %d, %v)", major, minor, ok)
	}
	if d.Devnode() != "/dev/sda" {
		t.Errorf("Devnode = %q", d.Devnode())
	}
	if dt, _ := d.Devtype(); dt != "disk" {
		t.Errorf("Devtype = %q", dt)
	}
	if ss, _ := d.Subsystem(); ss != "block" {
		t.Errorf("Subsystem = %q", ss)
	}
	if id, ok := d.ID(); !ok || id != "b8:0" {
		t.Errorf("ID = (%q, %v)", id, ok)
	}
	if v, _ := d.Property("KERNEL"); v != "sda" {
		t.Errorf("KERNEL = %q", v)
	}
}

func TestSysDeviceSubsystemLink(t *testing.T) {
	fs, root := testSysfs(t)
	dir := writeSysDevice(t, root, "/devices/virtual/tty/tty0", "MAJOR=4\nMINOR=0\n")

	classDir := filepath.Join(root, "class", "tty")
	if err := os.MkdirAll(classDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(classDir, filepath.Join(dir, "subsystem")); err != nil {
		t.Fatal(err)
	}

	d, err := fs.FromDevpath("/devices/virtual/tty/tty0")
	if err != nil {
		t.Fatal(err)
	}
	if ss, ok := d.Subsystem(); !ok || ss != "tty" {
		t.Errorf("Subsystem = (%q, %v), want tty", ss, ok)
	}
	if id, _ := d.ID(); id != "c4:0" {
		t.Errorf("ID = %q", id)
	}
}

func TestSysDeviceSysattr(t *testing.T) {
	fs, root := testSysfs(t)
	dir := writeSysDevice(t, root, "/devices/pci0/block/sda", "")
	if err := os.WriteFile(filepath.Join(dir, "removable"), []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := fs.FromDevpath("/devices/pci0/block/sda")
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := d.Sysattr("removable"); !ok || v != "0" {
		t.Errorf("Sysattr(removable) = (%q, %v), want 0 without trailing newline", v, ok)
	}
	if _, ok := d.Sysattr("missing"); ok {
		t.Error("missing attribute reported present")
	}
}

func TestSysDeviceParent(t *testing.T) {
	fs, root := testSysfs(t)
	writeSysDevice(t, root, "/devices/pci0/usb1", "SUBSYSTEM=usb\n")
	writeSysDevice(t, root, "/devices/pci0/usb1/1-1", "")
	// intermediate dirs without uevent files are skipped
	writeSysDevice(t, root, "/devices/pci0/usb1/1-1/extra/sda", "MAJOR=8\nMINOR=0\n")

	d, err := fs.FromDevpath("/devices/pci0/usb1/1-1/extra/sda")
	if err != nil {
		t.Fatal(err)
	}

	parent, ok := d.Parent()
	if !ok {
		t.Fatal("no parent")
	}
	if parent.Devpath() != "/devices/pci0/usb1/1-1" {
		t.Errorf("parent = %q", parent.Devpath())
	}

	grand, ok := parent.Parent()
	if !ok || grand.Devpath() != "/devices/pci0/usb1" {
		t.Fatalf("grandparent = %v, %v", grand, ok)
	}
	if _, ok := grand.Parent(); ok {
		t.Error("top-level device has a parent")
	}
}

func TestSysfsRegistryReuse(t *testing.T) {
	fs, root := testSysfs(t)
	writeSysDevice(t, root, "/devices/pci0/sda", "MAJOR=8\nMINOR=0\n")

	a, err := fs.FromDevpath("/devices/pci0/sda")
	if err != nil {
		t.Fatal(err)
	}
	a.SetEnv("ID_PART", "1")

	b, err := fs.FromDevpath("/devices/pci0/sda")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("registry handed out a second instance")
	}

	fs.Invalidate(a.Syspath())
	c, err := fs.FromDevpath("/devices/pci0/sda")
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("invalidated device was reused")
	}
	if _, ok := c.Env("ID_PART"); ok {
		t.Error("env survived invalidation")
	}
}

func TestSysfsFromProperties(t *testing.T) {
	fs, _ := testSysfs(t)

	d, err := fs.FromProperties(map[string]string{
		"DEVPATH":   "/devices/pci0/sdb",
		"ACTION":    "add",
		"SUBSYSTEM": "block",
		"MAJOR":     "8",
		"MINOR":     "16",
		"DEVNAME":   "sdb",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := d.Property("ACTION"); ok {
		t.Error("ACTION leaked into device properties")
	}
	if id, _ := d.ID(); id != "b8:16" {
		t.Errorf("ID = %q", id)
	}
	if d.Devnode() != "/dev/sdb" {
		t.Errorf("Devnode = %q", d.Devnode())
	}

	if _, err := fs.FromProperties(map[string]string{"SUBSYSTEM": "block"}); err == nil {
		t.Error("expected an error without DEVPATH")
	}
}

func TestSysfsWalk(t *testing.T) {
	fs, root := testSysfs(t)
	writeSysDevice(t, root, "/devices/pci0/sda", "MAJOR=8\nMINOR=0\n")
	writeSysDevice(t, root, "/devices/virtual/net/eth0", "IFINDEX=2\n")
	// no uevent file, not a device
	if err := os.MkdirAll(filepath.Join(root, "devices", "skipme"), 0o755); err != nil {
		t.Fatal(err)
	}

	var seen []string
	err := fs.Walk(func(d *SysDevice) error {
		seen = append(seen, d.Devpath())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"/devices/pci0/sda", "/devices/virtual/net/eth0"}
	if len(seen) != len(want) {
		t.Fatalf("walked %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("walk[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestSysnameBangTranslation(t *testing.T) {
	fs, root := testSysfs(t)
	writeSysDevice(t, root, "/devices/virtual/block/cciss!c0d0", "MAJOR=104\nMINOR=0\n")

	d, err := fs.FromDevpath("/devices/virtual/block/cciss!c0d0")
	if err != nil {
		t.Fatal(err)
	}
	if d.Sysname() != "cciss/c0d0" {
		t.Errorf("Sysname = %q, want cciss/c0d0", d.Sysname())
	}
	// KERNEL keeps the raw name from the devpath
	if v, _ := d.Property("KERNEL"); v != "cciss!c0d0" {
		t.Errorf("KERNEL = %q", v)
	}
}

func TestStringSet(t *testing.T) {
	s := NewStringSet("b", "a")
	s.Add("c")
	s.Add("a")

	if s.Len() != 3 {
		t.Errorf("Len = %d", s.Len())
	}
	if got := s.Values(); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Values = %v, want sorted a b c", got)
	}

	s.Remove("b")
	if s.Has("b") {
		t.Error("removed value still present")
	}
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d", s.Len())
	}
}
