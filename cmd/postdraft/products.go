package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"postdraft/internal/config"
)

func (a *app) newProductsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the configured products, their repositories and frequencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			registry, err := cfg.Registry()
			if err != nil {
				return err
			}

			st := newStyles(a.stdout)
			var sb strings.Builder
			for _, p := range registry.AllProducts() {
				sb.WriteString(st.header.Render(p.Name))
				sb.WriteString("\n")
				for _, r := range p.Repositories {
					sb.WriteString("  " + r.String() + "\n")
				}
			}
			sb.WriteString("\n")
			sb.WriteString(st.header.Render("Frequencies"))
			sb.WriteString("\n")
			for _, label := range registry.Frequencies() {
				w, err := registry.LookupWindow(label, 0)
				if err != nil {
					return err
				}
				line := fmt.Sprintf("  %-8s %s", label, pluralDays(w.Days))
				if label == registry.DefaultFrequency() {
					line += st.dim.Render(" (default)")
				}
				sb.WriteString(line + "\n")
			}
			_, err = fmt.Fprint(a.stdout, sb.String())
			return err
		},
	}
}

func (a *app) newInitConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the built-in configuration to a YAML file for editing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "postdraft.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &config.ConfigError{Field: "config", Msg: path + " already exists (use --force to overwrite)"}
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to check %s: %w", path, err)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			newStyles(a.stderr).printSuccess(a.stderr, "Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
