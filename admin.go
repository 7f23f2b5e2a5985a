package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"school-library/config"
	"school-library/library"
)

func newJanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jan",
		Short: "Internal JAN codes for books without an ISBN",
	}
	var count int
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue new JAN codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("-n must be at least 1")
			}
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()
			for i := 0; i < count; i++ {
				jan, err := mgr.IssueJanCode(cmd.Context(), library.System)
				if err != nil {
					return err
				}
				fmt.Printf("%s  #%d\n", color.WhiteString(jan.Code), jan.SequenceNumber)
			}
			return nil
		},
	}
	issue.Flags().IntVarP(&count, "count", "n", 1, "number of codes to issue")
	cmd.AddCommand(issue)
	return cmd
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Login sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()
			n, err := mgr.PurgeSessions(cmd.Context(), library.System)
			if err != nil {
				return err
			}
			ok("Purged %d expired sessions", n)
			return nil
		},
	})
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration file helpers",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the current settings to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flagConfig); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", flagConfig)
			}
			if err := config.Save(cfg, flagConfig); err != nil {
				return err
			}
			ok("Wrote %s", flagConfig)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
