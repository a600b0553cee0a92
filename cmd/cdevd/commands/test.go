package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Orochimarufan/cdev/pkg/daemon"
	"github.com/Orochimarufan/cdev/pkg/device"
	"github.com/Orochimarufan/cdev/pkg/filterrules"
	"github.com/Orochimarufan/cdev/pkg/telemetry"
)

func newTestCommand() *cobra.Command {
	var (
		action     string
		source     string
		subsystem  string
		devtype    string
		devnum     string
		ifindex    int
		properties map[string]string
		filterDirs []string
		nodeDirs   []string
	)

	cmd := &cobra.Command{
		Use:   "test <devpath>",
		Short: "Run a synthetic event through the rules",
		Long: `Build a device from the command line, run it through the loaded rule
files as one event, and print the resulting decision. Nothing is
applied: no cgroup writes, no state updates outside the in-memory
store.`,
		Example: `  # What would happen to a disk add event?
  cdevd test /devices/pci0/block/sda --subsystem block --devnum 8:0

  # A network interface, against explicit rule directories
  cdevd test /devices/virtual/net/eth0 --subsystem net --ifindex 2 \
    --filter-rules ./rules.d --action add --source kernel`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Rules.Watch = false
			// Dry runs never touch the configured database.
			cfg.Store.Backend = "memory"
			if len(filterDirs) > 0 {
				cfg.Rules.FilterPaths = filterDirs
			}
			if len(nodeDirs) > 0 {
				cfg.Rules.NodePaths = nodeDirs
			}

			tcfg := telemetry.DefaultConfig()
			tcfg.Logging.Level = cfg.Log.Level
			tcfg.Metrics.Enabled = false
			tel, err := telemetry.New(tcfg)
			if err != nil {
				return err
			}

			d, err := daemon.New(ctx, cfg, tel)
			if err != nil {
				return err
			}
			defer d.Close()

			dev := device.NewSynthetic(args[0])
			if subsystem != "" {
				dev = dev.WithSubsystem(subsystem)
			}
			if devtype != "" {
				dev = dev.WithDevtype(devtype)
			}
			if devnum != "" {
				var major, minor uint32
				if _, err := fmt.Sscanf(devnum, "%d:%d", &major, &minor); err != nil {
					return fmt.Errorf("devnum must be <major>:<minor>: %w", err)
				}
				dev = dev.WithDevnum(major, minor)
			}
			if ifindex > 0 {
				dev = dev.WithIfindex(ifindex)
			}
			for k, v := range properties {
				dev = dev.WithProperty(k, v)
			}

			decision, err := d.HandleEvent(ctx, dev, action, source)
			if err != nil {
				return err
			}

			printDecision(cmd, decision, 0)
			return nil
		},
	}

	cmd.Flags().StringVarP(&action, "action", "a", "add", "event action")
	cmd.Flags().StringVarP(&source, "source", "s", filterrules.SourceUdev, "event source (sys, udev or kernel)")
	cmd.Flags().StringVar(&subsystem, "subsystem", "", "device subsystem")
	cmd.Flags().StringVar(&devtype, "devtype", "", "device type")
	cmd.Flags().StringVar(&devnum, "devnum", "", "device numbers as <major>:<minor>")
	cmd.Flags().IntVar(&ifindex, "ifindex", 0, "network interface index")
	cmd.Flags().StringToStringVarP(&properties, "property", "p", nil, "device properties (key=value)")
	cmd.Flags().StringSliceVar(&filterDirs, "filter-rules", nil, "filter rule files or directories (overrides config)")
	cmd.Flags().StringSliceVar(&nodeDirs, "node-rules", nil, "node rule files or directories (overrides config)")

	return cmd
}

func printDecision(cmd *cobra.Command, d *daemon.Decision, depth int) {
	indent := strings.Repeat("  ", depth)
	cmd.Printf("%sresult:  %s\n", indent, d.Result)
	if d.CGroup != "" {
		cmd.Printf("%scgroup:  %s\n", indent, d.CGroup)
	}
	if d.Allowed() {
		cmd.Printf("%sforward: %s\n", indent, strings.Join(d.Forward, ", "))
		if d.User != "" {
			cmd.Printf("%suser:    %s\n", indent, d.User)
		}
		if d.Group != "" {
			cmd.Printf("%sgroup:   %s\n", indent, d.Group)
		}
		if d.ModeSet {
			cmd.Printf("%smode:    %04o\n", indent, d.Mode)
		}
	}
	if d.Emitted != nil {
		cmd.Printf("%semitted event:\n", indent)
		printDecision(cmd, d.Emitted, depth+1)
	}
}
