package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// initCmd walks the operator through a starter configuration and writes it
// to disk. Every answer maps to a top-level config key.
func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a starter configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("output")

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, remove it first", path)
			}

			var (
				masters string
				prefix  = "!"
				bind    = "127.0.0.1:8080"
				token   string
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Master user IDs").
						Description("Comma-separated sender IDs with full command authority.").
						Value(&masters),
					huh.NewInput().
						Title("Command prefix").
						Value(&prefix).
						Validate(func(s string) error {
							if s == "" {
								return fmt.Errorf("prefix must not be empty")
							}
							return nil
						}),
					huh.NewInput().
						Title("Gateway bind address").
						Description("Admin HTTP server. Keep it on loopback unless you know why not.").
						Value(&bind),
					huh.NewInput().
						Title("Gateway bearer token").
						Description("Leave empty to disable the authenticated endpoints.").
						EchoMode(huh.EchoModePassword).
						Value(&token),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			content := renderStarterConfig(masters, prefix, bind, token)
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			fmt.Printf("Wrote %s. Start with: skald start -c %s\n", path, path)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "skald.yaml", "Where to write the configuration")
	return cmd
}

func renderStarterConfig(masters, prefix, bind, token string) string {
	var b strings.Builder
	b.WriteString("version: \"1\"\n")

	b.WriteString("host:\n")
	ids := splitList(masters)
	if len(ids) == 0 {
		b.WriteString("  masters: []\n")
	} else {
		b.WriteString("  masters:\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "    - %s\n", id)
		}
	}

	b.WriteString("modules:\n")
	b.WriteString("  platform.mock: {}\n")
	b.WriteString("  cmd.core: {}\n")
	b.WriteString("  watch.activity: {}\n")
	b.WriteString("  gateway.http:\n")
	fmt.Fprintf(&b, "    bind: %q\n", bind)
	if token != "" {
		b.WriteString("    auth:\n")
		fmt.Fprintf(&b, "      bearer_token: %q\n", token)
	}

	if prefix != "!" {
		b.WriteString("settings:\n")
		fmt.Fprintf(&b, "  prefix.default: %q\n", prefix)
	}

	return b.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
