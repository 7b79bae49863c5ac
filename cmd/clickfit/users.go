package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kdsmith18542/clickfit/database"
	"github.com/kdsmith18542/clickfit/users"
)

func newUsersCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage member accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openUsers(cmd, flags)
			if err != nil {
				return err
			}
			defer closeDB()

			list, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tTYPE\tACTIVE\tCREATED")
			for _, u := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", u.ID, u.Email, u.Type, u.Active, humanize.Time(u.CreatedAt))
			}
			return w.Flush()
		},
	})

	var in users.NewUser
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openUsers(cmd, flags)
			if err != nil {
				return err
			}
			defer closeDB()

			id, err := store.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d\n", id)
			return nil
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "email address")
	create.Flags().StringVar(&in.Password, "password", "", "password, at least 6 characters")
	create.Flags().StringVar(&in.Type, "type", users.TypeUser, "admin or user")
	cmd.AddCommand(create)
	return cmd
}

func openUsers(cmd *cobra.Command, flags *globalFlags) (*users.Store, func() error, error) {
	cfg, _, err := flags.load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cmd.Context(), cfg.DBDriver, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, err
	}
	return users.NewStore(db), db.Close, nil
}
