// Package device models kernel devices as the rule engine sees them.
//
// Device is the capability surface consumed by rule conditions and
// assignments: property, environment and sysattr lookup, subsystem and
// devtype classification, tag and devlink sets, and parent traversal.
//
// Sysfs provides devices backed by a sysfs tree (uevent files, attribute
// files, subsystem links) with a registry so that repeated lookups of the
// same syspath share one instance. Synthetic provides fully in-memory
// devices for tests and for the "cdevd test" command.
package device
