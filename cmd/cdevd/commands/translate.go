package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Orochimarufan/cdev/pkg/fnmatch"
)

func newTranslateCommand() *cobra.Command {
	var (
		match string
	)

	cmd := &cobra.Command{
		Use:   "translate <pattern>...",
		Short: "Show the regular expression a match pattern compiles to",
		Long: `Translate extended glob patterns to their regular expression form.
Useful for debugging why a rule condition does or does not match.`,
		Example: `  # See what a pattern compiles to
  cdevd translate 'sd[a-z]*' '{sd,hd}a' '^usb*'

  # Check a pattern against a value
  cdevd translate 'tty[0-9]+' --match ttyS0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, pattern := range args {
				src, err := fnmatch.Translate(pattern)
				if err != nil {
					return fmt.Errorf("%s: %w", pattern, err)
				}
				cmd.Printf("%s\t%s\n", pattern, src)

				if match != "" {
					ok, err := fnmatch.Match(match, pattern)
					if err != nil {
						return err
					}
					verdict := "matches"
					if !ok {
						verdict = "does not match"
					}
					cmd.Printf("\t%q %s\n", match, verdict)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&match, "match", "m", "", "value to test each pattern against")

	return cmd
}
