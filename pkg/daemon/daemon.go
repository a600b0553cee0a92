package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Orochimarufan/cdev/pkg/cgroups"
	"github.com/Orochimarufan/cdev/pkg/config"
	"github.com/Orochimarufan/cdev/pkg/device"
	"github.com/Orochimarufan/cdev/pkg/filterrules"
	"github.com/Orochimarufan/cdev/pkg/noderules"
	"github.com/Orochimarufan/cdev/pkg/rules"
	"github.com/Orochimarufan/cdev/pkg/stores"
	"github.com/Orochimarufan/cdev/pkg/telemetry"
)

// Decision is the outcome of processing one device event.
type Decision struct {
	// EventID identifies the event in logs and traces.
	EventID string

	// Result is the filter outcome (unset means no TARGET rule fired).
	Result filterrules.Result

	// CGroup names the control-group manager to apply, or "".
	CGroup string

	// Forward lists what gets forwarded with an allowed event, sorted.
	Forward []string

	// Emitted is the follow-up event processed as a consequence of an
	// ACTION+= rule, if any.
	Emitted *Decision

	// User, Group and Mode are the node-rule results for allowed
	// events. ModeSet distinguishes mode 0 from "not assigned".
	User    string
	Group   string
	Mode    uint32
	ModeSet bool
}

// Allowed reports whether the event should be forwarded. Events are
// allowed unless a rule said deny.
func (d *Decision) Allowed() bool {
	return d.Result != filterrules.ResultDeny
}

// Daemon evaluates device events against the loaded rule files.
type Daemon struct {
	cfg *config.Config
	tel *telemetry.Telemetry
	log zerolog.Logger

	sysfs    *device.Sysfs
	store    stores.Store
	registry *cgroups.Registry

	filterPreset *rules.Preset
	nodePreset   *rules.Preset
	filterLoader *rules.Loader
	nodeLoader   *rules.Loader

	mu          sync.RWMutex
	filterRules []*rules.RuleSet
	nodeRules   []*rules.RuleSet
}

// New creates a daemon from configuration and loads the rule files.
func New(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (*Daemon, error) {
	log := tel.Logger.Component("daemon")

	store, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	registry := cgroups.NewRegistry(
		cgroups.NewLXC(cfg.CGroups.LXCRoot, tel.Logger.Zerolog()),
	)

	d := &Daemon{
		cfg:          cfg,
		tel:          tel,
		log:          log,
		sysfs:        device.NewSysfs(cfg.Sysfs, tel.Logger.Zerolog()),
		store:        store,
		registry:     registry,
		filterPreset: filterrules.NewPreset(tel.Logger.Zerolog(), registry.Names()),
		nodePreset:   noderules.NewPreset(tel.Logger.Zerolog()),
	}
	d.filterLoader = rules.NewLoader(d.filterPreset, tel.Logger.Zerolog())
	d.nodeLoader = rules.NewLoader(d.nodePreset, tel.Logger.Zerolog())

	if err := d.loadRules(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return d, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig) (stores.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Path})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return stores.NewMemoryStore(), nil
	}
}

// loadRules loads both rule dialects from their configured paths.
func (d *Daemon) loadRules(ctx context.Context) error {
	filter, err := d.filterLoader.LoadFromPaths(ctx, d.cfg.Rules.FilterPaths)
	if err != nil {
		d.tel.Metrics.RecordParseError("filter")
		return fmt.Errorf("loading filter rules: %w", err)
	}

	var node []*rules.RuleSet
	if len(d.cfg.Rules.NodePaths) > 0 {
		node, err = d.nodeLoader.LoadFromPaths(ctx, d.cfg.Rules.NodePaths)
		if err != nil {
			d.tel.Metrics.RecordParseError("node")
			return fmt.Errorf("loading node rules: %w", err)
		}
	}

	d.mu.Lock()
	d.filterRules = filter
	d.nodeRules = node
	d.mu.Unlock()

	d.tel.Metrics.SetLoadedRuleSets("filter", len(filter))
	d.tel.Metrics.SetLoadedRuleSets("node", len(node))
	return nil
}

// Watch starts rule-file watchers that reload and atomically swap the
// rule sets on change. A reload that fails to parse keeps the previous
// rules.
func (d *Daemon) Watch(ctx context.Context) error {
	if !d.cfg.Rules.Watch {
		return nil
	}

	err := d.filterLoader.Watch(ctx, d.cfg.Rules.FilterPaths, func(rulesets []*rules.RuleSet) error {
		d.mu.Lock()
		d.filterRules = rulesets
		d.mu.Unlock()
		d.tel.Metrics.SetLoadedRuleSets("filter", len(rulesets))
		d.tel.Metrics.RecordReload("ok")
		return nil
	})
	if err != nil {
		return err
	}

	if len(d.cfg.Rules.NodePaths) == 0 {
		return nil
	}
	return d.nodeLoader.Watch(ctx, d.cfg.Rules.NodePaths, func(rulesets []*rules.RuleSet) error {
		d.mu.Lock()
		d.nodeRules = rulesets
		d.mu.Unlock()
		d.tel.Metrics.SetLoadedRuleSets("node", len(rulesets))
		d.tel.Metrics.RecordReload("ok")
		return nil
	})
}

// Sysfs returns the daemon's device registry.
func (d *Daemon) Sysfs() *device.Sysfs {
	return d.sysfs
}

// Store returns the auxiliary per-device state store.
func (d *Daemon) Store() stores.Store {
	return d.store
}

// HandleEvent runs one device event through the filter and node rules
// and returns the combined decision.
func (d *Daemon) HandleEvent(ctx context.Context, dev device.Device, action, source string) (*Decision, error) {
	return d.handleEvent(ctx, dev, action, source, true)
}

func (d *Daemon) handleEvent(ctx context.Context, dev device.Device, action, source string, allowEmit bool) (*Decision, error) {
	eventID := uuid.NewString()
	start := time.Now()

	ctx, span := d.tel.Tracer.StartEventSpan(ctx, eventID, action, source)
	span.SetAttributes(telemetry.AttrDevice.String(dev.Syspath()))
	defer span.End()

	log := d.log.With().
		Str("event", eventID).
		Str("action", action).
		Str("source", source).
		Str("device", dev.Devpath()).
		Logger()
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		log = log.With().Str("trace", traceID).Logger()
	}

	decision := &Decision{EventID: eventID}

	fctx := filterrules.NewContext(ctx, dev, action, source, d.store, log)
	fctx.EventID = eventID
	d.execRules(ctx, "filter", d.snapshotFilterRules(), fctx)

	decision.Result = fctx.Result
	decision.CGroup = fctx.CGroup
	decision.Forward = fctx.Forward.Values()

	if decision.Allowed() {
		nctx := noderules.NewContext(dev, action, log)
		nctx.EventID = eventID
		d.execRules(ctx, "node", d.snapshotNodeRules(), nctx)

		decision.User = nctx.User
		decision.Group = nctx.Group
		decision.Mode = nctx.Mode
		decision.ModeSet = nctx.ModeSet
	}

	if action == "remove" {
		d.forgetDevice(ctx, dev, log)
	}

	// At most one synthesized follow-up event per incoming event.
	if fctx.Emit != nil && allowEmit {
		d.tel.Metrics.RecordEmit(fctx.Emit.Action)
		emitted, err := d.handleEvent(ctx, dev, fctx.Emit.Action, source, false)
		if err != nil {
			telemetry.RecordError(span, err)
			log.Error().Err(err).Str("emit_action", fctx.Emit.Action).Msg("emitted event failed")
		} else {
			decision.Emitted = emitted
		}
	}

	d.tel.Metrics.RecordEvent(action, source, decision.Result.String(), time.Since(start))
	span.SetAttributes(telemetry.AttrResult.String(decision.Result.String()))
	telemetry.RecordSuccess(span)
	log.Debug().
		Str("result", decision.Result.String()).
		Str("cgroup", decision.CGroup).
		Msg("event processed")

	return decision, nil
}

func (d *Daemon) snapshotFilterRules() []*rules.RuleSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filterRules
}

func (d *Daemon) snapshotNodeRules() []*rules.RuleSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodeRules
}

// execRules runs each loaded rule file in order against the context.
// A done flag only ends the file that set it.
func (d *Daemon) execRules(ctx context.Context, preset string, rulesets []*rules.RuleSet, rctx rules.Context) {
	for _, rs := range rulesets {
		_, span := d.tel.Tracer.StartRuleSetSpan(ctx, preset, rs.File)
		start := time.Now()
		rs.Exec(rctx)
		d.tel.Metrics.RecordRuleSetEvaluation(preset, time.Since(start))
		if rctx.RulesBase().Aborted {
			d.tel.Metrics.RecordGotoAbort(preset)
		}
		span.End()
	}
}

// forgetDevice drops cached and stored state for a removed device.
func (d *Daemon) forgetDevice(ctx context.Context, dev device.Device, log zerolog.Logger) {
	d.sysfs.Invalidate(dev.Syspath())
	if id, ok := dev.ID(); ok {
		if err := d.store.Remove(ctx, id); err != nil {
			log.Error().Err(err).Str("device", id).Msg("dropping device state failed")
		}
	}
}

// ApplyCGroup applies the decision's cgroup effect for the named
// containers.
func (d *Daemon) ApplyCGroup(decision *Decision, dev device.Device, containers []string) error {
	if decision.CGroup == "" {
		return nil
	}
	manager, ok := d.registry.Get(decision.CGroup)
	if !ok {
		return fmt.Errorf("unknown cgroup manager %q", decision.CGroup)
	}

	apply, verb := manager.Deny, "deny"
	if decision.Allowed() {
		apply, verb = manager.Allow, "allow"
	}

	for _, container := range containers {
		if err := apply(container, dev); err != nil {
			return fmt.Errorf("cgroup %s for container %s: %w", verb, container, err)
		}
		d.tel.Metrics.RecordCGroupUpdate(decision.CGroup, verb)
	}
	return nil
}

// Coldplug walks sysfs and synthesizes an add event for every device
// already present, the way a boot-time scan replays missed hotplug
// events. Per-device failures are logged and skipped.
func (d *Daemon) Coldplug(ctx context.Context) error {
	count := 0
	err := d.sysfs.Walk(func(dev *device.SysDevice) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		count++
		d.tel.Metrics.RecordColdplugDevice()
		if _, err := d.HandleEvent(ctx, dev, "add", filterrules.SourceSys); err != nil {
			d.log.Error().Err(err).Str("device", dev.Devpath()).Msg("coldplug event failed")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("coldplug scan: %w", err)
	}

	d.log.Info().Int("devices", count).Msg("coldplug scan finished")
	return nil
}

// Close releases the daemon's resources.
func (d *Daemon) Close() error {
	if err := d.filterLoader.StopWatching(); err != nil {
		d.log.Warn().Err(err).Msg("stopping filter watcher failed")
	}
	if err := d.nodeLoader.StopWatching(); err != nil {
		d.log.Warn().Err(err).Msg("stopping node watcher failed")
	}
	return d.store.Close()
}
