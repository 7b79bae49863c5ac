package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newImagesCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Inspect and maintain stored images",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List gallery images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			imgs, err := openImages(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer imgs.Close()

			list, err := imgs.gallery.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILENAME\tSIZE\tUPLOADED\tORIGINAL")
			for _, img := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", img.Filename, humanize.IBytes(uint64(img.Size)), humanize.Time(img.UploadedAt), img.OriginalName)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <filename>...",
		Short: "Delete images by stored filename",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			imgs, err := openImages(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer imgs.Close()

			for _, name := range args {
				if err := imgs.gallery.Delete(cmd.Context(), name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Drop catalog records whose image is gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			imgs, err := openImages(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer imgs.Close()

			dropped, err := imgs.gallery.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range dropped {
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d stale record(s) removed\n", len(dropped))
			return nil
		},
	})
	return cmd
}
