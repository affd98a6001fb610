package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolchest/favikit/internal/catalog"
)

var sizesCmd = &cobra.Command{
	Use:   "sizes",
	Short: "List the favicon sizes and presets",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		w := c.OutOrStdout()
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Sizes:")
		for _, s := range catalog.All() {
			purpose := ""
			if s.Purpose != "" {
				purpose = "(" + s.Purpose + ")"
			}
			fmt.Fprintf(w, "    %-14s %-26s %9s  %-4s %s\n", s.Key, s.Name, s.Dimensions(), s.Format, purpose)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Presets:")
		for _, name := range catalog.PresetNames() {
			keys, _ := catalog.Preset(name)
			marker := " "
			if name == catalog.DefaultPreset {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %-10s %s\n", marker, name, strings.Join(keys, ", "))
		}
		fmt.Fprintln(w)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sizesCmd)
}
