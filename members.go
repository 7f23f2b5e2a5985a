package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"school-library/library"
)

func newMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "members",
		Aliases: []string{"students"},
		Short:   "Manage member accounts",
	}
	cmd.AddCommand(newMembersAddCmd(), newMembersListCmd(), newMembersPromoteCmd(), newMembersSetPasswordCmd())
	return cmd
}

func newMembersAddCmd() *cobra.Command {
	var (
		in         library.MemberInput
		admin      bool
		noPassword bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			password := ""
			if !noPassword {
				if password, err = promptNewPassword(in.Name); err != nil {
					return err
				}
			}
			role := library.RoleMember
			if admin {
				role = library.RoleAdmin
			}
			m, err := mgr.CreateMember(cmd.Context(), library.System, in, password, role)
			if err != nil {
				return err
			}
			ok("Added %s %q with ID %d", m.Role, m.Name, m.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "display name")
	f.StringVar(&in.StudentNumber, "number", "", "student number")
	f.StringVar(&in.Email, "email", "", "login email")
	f.IntVar(&in.Grade, "grade", 0, "grade")
	f.StringVar(&in.Class, "class", "", "class")
	f.BoolVar(&admin, "admin", false, "grant the admin role")
	f.BoolVar(&noPassword, "no-password", false, "skip the password; the member sets one with setup-password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}

func newMembersListCmd() *cobra.Command {
	var (
		f    library.MemberFilter
		page int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members with their loan counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			res, err := mgr.ListMembers(cmd.Context(), library.System, f, library.PageRequest{Page: page, PerPage: library.MaxPerPage})
			if err != nil {
				return err
			}
			if len(res.Data) == 0 {
				fmt.Println("No members registered.")
				return nil
			}

			fmt.Printf("%-5s %-12s %-20s %-28s %-6s %-8s %-8s %s\n",
				"ID", "Number", "Name", "Email", "Role", "Active", "Overdue", "Registered")
			fmt.Println(strings.Repeat("-", 110))
			now := time.Now()
			for _, m := range res.Data {
				role := m.Role
				if m.IsAdmin() {
					role = color.CyanString("%-6s", role)
				} else {
					role = fmt.Sprintf("%-6s", role)
				}
				overdue := fmt.Sprintf("%-8d", m.OverdueBorrowsCount)
				if m.OverdueBorrowsCount > 0 {
					overdue = color.RedString(overdue)
				}
				fmt.Printf("%-5d %-12s %-20s %-28s %s %-8d %s %s\n",
					m.ID, truncate(m.StudentNumber, 12), truncate(m.Name, 20), truncate(m.Email, 28),
					role, m.ActiveBorrowsCount, overdue, humanize.RelTime(m.CreatedAt, now, "ago", "from now"))
			}
			fmt.Printf("\nPage %d of %d, %s members\n",
				res.Meta.CurrentPage, res.Meta.LastPage, humanize.Comma(int64(res.Meta.Total)))
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "name or student number")
	cmd.Flags().IntVar(&f.Grade, "grade", 0, "grade")
	cmd.Flags().StringVar(&f.Class, "class", "", "class")
	cmd.Flags().StringVar(&f.Role, "role", "", "member or admin")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func parseMemberID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid member ID: %s", arg)
	}
	return id, nil
}

func newMembersPromoteCmd() *cobra.Command {
	var demote bool
	cmd := &cobra.Command{
		Use:   "promote <member-id>",
		Short: "Grant (or with --demote revoke) the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMemberID(args[0])
			if err != nil {
				return err
			}
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			role := library.RoleAdmin
			if demote {
				role = library.RoleMember
			}
			if err := mgr.SetRole(cmd.Context(), library.System, id, role); err != nil {
				return err
			}
			ok("Member %d is now %s", id, role)
			return nil
		},
	}
	cmd.Flags().BoolVar(&demote, "demote", false, "revoke the admin role instead")
	return cmd
}

func newMembersSetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-password <member-id>",
		Short: "Reset a member's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMemberID(args[0])
			if err != nil {
				return err
			}
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			m, err := mgr.GetMember(cmd.Context(), library.System, id)
			if err != nil {
				return err
			}
			pw, err := promptNewPassword(fmt.Sprintf("%s (ID: %d)", m.Name, m.ID))
			if err != nil {
				return err
			}
			if err := mgr.ResetPassword(cmd.Context(), library.System, id, pw); err != nil {
				return err
			}
			ok("Password reset for %s (ID: %d)", m.Name, m.ID)
			return nil
		},
	}
}
