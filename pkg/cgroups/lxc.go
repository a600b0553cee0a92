package cgroups

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Orochimarufan/cdev/pkg/device"
)

// DefaultLXCRoot is where the devices controller hierarchy for LXC
// containers usually lives.
const DefaultLXCRoot = "/sys/fs/cgroup/devices/lxc"

// LXC manages the devices cgroup of LXC containers by writing rule
// entries to devices.allow and devices.deny under the container's cgroup
// directory.
type LXC struct {
	root string
	log  zerolog.Logger
}

// NewLXC creates an LXC manager rooted at the given devices-controller
// directory. An empty root selects DefaultLXCRoot.
func NewLXC(root string, logger zerolog.Logger) *LXC {
	if root == "" {
		root = DefaultLXCRoot
	}
	return &LXC{
		root: root,
		log:  logger.With().Str("component", "cgroups-lxc").Logger(),
	}
}

// Name implements Manager.
func (m *LXC) Name() string { return "lxc" }

// Allow implements Manager.
func (m *LXC) Allow(container string, dev device.Device) error {
	return m.apply(container, dev, true)
}

// Deny implements Manager.
func (m *LXC) Deny(container string, dev device.Device) error {
	return m.apply(container, dev, false)
}

func (m *LXC) apply(container string, dev device.Device, allow bool) error {
	major, minor, ok := dev.Devnum()
	if !ok || major == 0 {
		// Devices without a node cannot appear in the devices cgroup.
		return nil
	}

	kind := "c"
	if subsystem, _ := dev.Subsystem(); subsystem == "block" {
		kind = "b"
	}

	file, perms := "devices.deny", "rm"
	if allow {
		file, perms = "devices.allow", "rwm"
	}
	entry := fmt.Sprintf("%s %d:%d %s", kind, major, minor, perms)

	m.log.Info().
		Str("container", container).
		Str("file", file).
		Str("entry", entry).
		Msg("updating container device rules")

	path := filepath.Join(m.root, container, file)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(entry + "\n"); err != nil {
		return fmt.Errorf("writing %s to %s: %w", entry, path, err)
	}
	return nil
}
