// Package filterrules is the rule dialect cdevd evaluates to decide what
// to do with an incoming device event: forward it to clients or drop it
// (TARGET), adjust container control-group device permissions (CGROUP),
// choose what gets forwarded (FORWARD), persist auxiliary per-device
// state across events (CENV), and synthesize follow-up events (ACTION+=).
//
// A typical rule file:
//
//	SOURCE=="udev", SUBSYSTEM=="block", CENV{OWNER}="ct1", TARGET="allow"
//	SUBSYSTEM=="net", TARGET="deny"
package filterrules
