package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Orochimarufan/cdev/pkg/cgroups"
	"github.com/Orochimarufan/cdev/pkg/filterrules"
	"github.com/Orochimarufan/cdev/pkg/noderules"
	"github.com/Orochimarufan/cdev/pkg/rules"
)

func newValidateCommand() *cobra.Command {
	var (
		presetName string
	)

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate rule files",
		Long: `Parse rule files and report syntax errors without running anything.

Each path names a .rules file or a directory of them. The preset flag
selects which rule dialect to check the files against.`,
		Example: `  # Check the filter rules directory
  cdevd validate /etc/cdev/rules.d

  # Check a node-rules file
  cdevd validate --preset node ./50-disks.rules`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preset, err := presetByName(presetName)
			if err != nil {
				return err
			}

			files, err := collectRuleFiles(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no .rules files found")
			}

			failed := 0
			for _, file := range files {
				rs, err := preset.ParseFile(file)
				if err != nil {
					failed++
					if se, ok := rules.AsSyntaxError(err); ok {
						fmt.Fprintf(os.Stderr, "%s:%d: %s\n", se.File, se.Line, se.Error())
					} else {
						fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
					}
					continue
				}
				fmt.Printf("%s: ok (%d rules)\n", file, rs.Len())
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&presetName, "preset", "filter", "rule dialect to validate against (filter or node)")

	return cmd
}

// presetByName builds the named rule preset the way the daemon does.
func presetByName(name string) (*rules.Preset, error) {
	logger := log.Logger.Level(zerolog.WarnLevel)
	switch name {
	case "filter":
		registry := cgroups.NewRegistry(cgroups.NewLXC("", logger))
		return filterrules.NewPreset(logger, registry.Names()), nil
	case "node":
		return noderules.NewPreset(logger), nil
	default:
		return nil, fmt.Errorf("unknown preset %q (want filter or node)", name)
	}
}

// collectRuleFiles expands directories into their .rules files, in
// lexical order, matching the daemon's load order.
func collectRuleFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".rules") {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			files = append(files, filepath.Join(p, name))
		}
	}
	return files, nil
}
