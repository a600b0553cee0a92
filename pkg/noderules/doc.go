// Package noderules is the rule dialect for device-node creation: it
// decides the owner, group and mode of a device node and lets rules write
// udev-style environment entries, tags and symlinks onto the device.
//
// A typical rule file:
//
//	ACTION=="add", SUBSYSTEM=="block", KERNEL=="sd*", MODE="0660", GROUP="disk"
//	SUBSYSTEM=="net", ENV{ID_CONTAINER}="ct1", TAG+="container"
package noderules
