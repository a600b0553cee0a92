package device

// Device is the capability surface the rule engine evaluates against.
// Lookups report presence with their second return value; an absent value
// never matches a positive condition operator and always matches a
// negative one. Sysattr may perform file I/O on sysfs-backed devices.
type Device interface {
	// Syspath is the stable identity used for registry lookups and for
	// cycle detection while walking the ancestor chain.
	Syspath() string

	// Devpath is the kernel device path below the sysfs mount point.
	Devpath() string

	// ID is the database identity of the device: "b<maj>:<min>" or
	// "c<maj>:<min>" for block/char devices, "n<ifindex>" for network
	// interfaces, "+<subsystem>:<sysname>" otherwise. ok is false when
	// no identity can be determined.
	ID() (id string, ok bool)

	Property(key string) (string, bool)
	Env(key string) (string, bool)
	SetEnv(key, value string)
	Sysattr(name string) (string, bool)

	Subsystem() (string, bool)
	Devtype() (string, bool)

	// Devnum returns the device's major and minor numbers; ok is false
	// for devices without a device node.
	Devnum() (major, minor uint32, ok bool)

	Tags() *StringSet
	Devlinks() *StringSet

	Parent() (Device, bool)
}
