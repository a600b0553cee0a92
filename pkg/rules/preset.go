package rules

import (
	"github.com/rs/zerolog"
)

// Preset maps rule-file names to the condition and assignment factories
// that implement them, and owns parsing for rule files written against
// it. Presets are built once at startup and are read-only afterwards;
// domain packages compose them by extending the base preset with their
// own names.
type Preset struct {
	name        string
	conditions  map[string]ConditionFactory
	assignments map[string]AssignmentFactory
	log         zerolog.Logger
}

// NewPreset returns the base preset: the conditions and assignments
// every rule dialect shares.
//
// Conditions: ACTION, KERNEL/SUBSYSTEM/DRIVER (and the hierarchy-walking
// KERNELS/SUBSYSTEMS/DRIVERS), ATTR/ATTRS, ENV/ENVS.
// Assignments: GOTO, _DEBUG.
func NewPreset(name string, logger zerolog.Logger) *Preset {
	return &Preset{
		name: name,
		conditions: map[string]ConditionFactory{
			"ACTION": ActionCondition,

			"ATTR":  AttrCondition,
			"ATTRS": AttrsCondition,

			"ENV":  EnvCondition,
			"ENVS": EnvsCondition,

			"KERNEL":    PropertyCondition,
			"SUBSYSTEM": PropertyCondition,
			"DRIVER":    PropertyCondition,

			"KERNELS":    PropertiesCondition,
			"SUBSYSTEMS": PropertiesCondition,
			"DRIVERS":    PropertiesCondition,
		},
		assignments: map[string]AssignmentFactory{
			"GOTO":   GotoAssignment,
			"_DEBUG": DebugAssignment,
		},
		log: logger.With().Str("component", "preset").Str("preset", name).Logger(),
	}
}

// Extend returns a new preset with the given names merged over this
// one's. The receiver is left untouched; overrides win on collision.
func (p *Preset) Extend(name string, conditions map[string]ConditionFactory, assignments map[string]AssignmentFactory) *Preset {
	next := &Preset{
		name:        name,
		conditions:  make(map[string]ConditionFactory, len(p.conditions)+len(conditions)),
		assignments: make(map[string]AssignmentFactory, len(p.assignments)+len(assignments)),
		log:         p.log.With().Str("preset", name).Logger(),
	}
	for k, v := range p.conditions {
		next.conditions[k] = v
	}
	for k, v := range conditions {
		next.conditions[k] = v
	}
	for k, v := range p.assignments {
		next.assignments[k] = v
	}
	for k, v := range assignments {
		next.assignments[k] = v
	}
	return next
}

// Name returns the preset's name.
func (p *Preset) Name() string { return p.name }
