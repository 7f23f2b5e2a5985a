package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"school-library/config"
	"school-library/library"
	"school-library/logging"
)

var (
	cfg    *config.Config
	logger zerolog.Logger

	flagConfig  string
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "school-library",
	Short: "School library catalog, lending and reporting service",
	Long: `school-library runs the REST API of the school library and offers
administrative commands for members, JAN codes and configuration.

Settings come from library.yml, a .env file and LIBRARY_* variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		color.NoColor = color.NoColor || flagNoColor
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger, err = logging.Setup(cfg.Log.Level, cfg.Log.Format)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newMembersCmd(),
		newJanCmd(),
		newSessionsCmd(),
		newConfigCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// openManager opens the database with the configured account policy.
func openManager(extra ...library.Option) (*library.LibraryManager, error) {
	opts := []library.Option{
		library.WithLogger(logger),
		library.WithAccountPolicy(library.DomainPolicy{Domain: cfg.Auth.AdminDomain}),
		library.WithAutoProvision(cfg.Auth.AutoProvision),
		library.WithSessionTTL(cfg.Auth.SessionTTL),
	}
	mgr, err := library.NewLibraryManager(cfg.Database.Path, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Database.Path, err)
	}
	return mgr, nil
}

// ok prints a green success line.
func ok(format string, a ...any) {
	fmt.Println(color.GreenString("✓"), fmt.Sprintf(format, a...))
}

// readPassword reads a password without echo.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// promptNewPassword asks twice and insists on a match.
func promptNewPassword(who string) (string, error) {
	pw, err := readPassword(fmt.Sprintf("New password for %s: ", who))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(pw) < 6 {
		return "", errors.New("password must be at least 6 characters")
	}
	again, err := readPassword("Repeat password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if pw != again {
		return "", errors.New("passwords do not match")
	}
	return pw, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
