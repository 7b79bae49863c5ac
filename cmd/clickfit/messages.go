package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kdsmith18542/clickfit/messages"
)

func newMessagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Check message bundles",
	}

	var dir string
	check := &cobra.Command{
		Use:   "check",
		Short: "Report keys missing from any locale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				m   *messages.Manager
				err error
			)
			if dir == "" {
				m, err = messages.NewManager("")
			} else {
				m, err = messages.Open(os.DirFS(dir), ".", "")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			locales := m.Locales()
			if len(locales) == 0 {
				return fmt.Errorf("no TOML bundles found")
			}
			fmt.Fprintf(out, "Checked %d locales: %s\n", len(locales), strings.Join(locales, ", "))

			missing := m.Missing()
			for _, code := range locales {
				keys := missing[code]
				if len(keys) == 0 {
					fmt.Fprintf(out, "%s: complete\n", code)
					continue
				}
				fmt.Fprintf(out, "%s is missing %d keys:\n", code, len(keys))
				for _, key := range keys {
					fmt.Fprintf(out, "  - %s\n", key)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("%d locale(s) incomplete", len(missing))
			}
			return nil
		},
	}
	check.Flags().StringVar(&dir, "dir", "", "directory of *.toml bundles; defaults to the embedded ones")
	cmd.AddCommand(check)
	return cmd
}
