package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanidx/configs"
	"github.com/Aman-CERP/amanidx/internal/config"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/output"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the user configuration file and inspect the effective settings.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/amanidx/config.yaml)
  3. Project config (.amanidx.yaml)
  4. Environment variables (AMANIDX_*)`,
		Example: `  amanidx config init
  amanidx config show --json
  amanidx config set embeddings.provider ollama
  amanidx config backups
  amanidx config restore ~/.config/amanidx/config.yaml.bak.20260101-120000.000000000`,
	}

	cmd.AddCommand(newConfigInitCmd(root))
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigSetCmd(root))
	cmd.AddCommand(newConfigBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd(root))

	return cmd
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout(), root.noColor)
			path := config.GetUserConfigPath()

			var backup string
			if config.UserConfigExists() {
				if !force {
					out.Warning("User configuration already exists")
					out.Statusf("📁", "Location: %s", path)
					out.Status("💡", "Use --force to replace it (a backup is kept)")
					return nil
				}
				var err error
				if backup, err = config.BackupUserConfig(); err != nil {
					return err
				}
			}

			if err := os.MkdirAll(config.GetUserConfigDir(), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			out.Success("Created user configuration")
			out.Statusf("📁", "Location: %s", path)
			if backup != "" {
				out.Statusf("💾", "Backup: %s", backup)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing configuration")
	return cmd
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout(), root.noColor)

			var (
				cfg  *config.Config
				desc string
			)
			switch source {
			case "merged":
				p, err := root.loadProject()
				if err != nil {
					return err
				}
				cfg, desc = p.cfg, "merged (defaults + user + project + env)"
			case "user":
				userCfg, err := config.LoadUserConfig()
				if err != nil {
					return err
				}
				if userCfg == nil {
					out.Warning("No user configuration file found")
					out.Statusf("📁", "Expected at: %s", config.GetUserConfigPath())
					out.Status("💡", "Run 'amanidx config init' to create one")
					return nil
				}
				cfg, desc = userCfg, "user ("+config.GetUserConfigPath()+")"
			case "defaults":
				cfg, desc = config.NewConfig(), "defaults"
			default:
				return amerrors.ValidationError(fmt.Sprintf("invalid source: %s", source), nil).
					WithSuggestion("use one of: merged, user, defaults")
			}

			if jsonOutput {
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			out.Statusf("📋", "Configuration source: %s", desc)
			out.Newline()
			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

// configSetters are the keys `config set` understands.
var configSetters = map[string]func(c *config.Config, v string) error{
	"embeddings.provider": func(c *config.Config, v string) error { c.Embeddings.Provider = v; return nil },
	"embeddings.model":    func(c *config.Config, v string) error { c.Embeddings.Model = v; return nil },
	"embeddings.host":     func(c *config.Config, v string) error { c.Embeddings.Host = v; return nil },
	"embeddings.dimensions": func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Embeddings.Dimensions = n
		return err
	},
	"store.driver":     func(c *config.Config, v string) error { c.Store.Driver = v; return nil },
	"knowledge.dir":    func(c *config.Config, v string) error { c.Knowledge.Dir = v; return nil },
	"server.log_level": func(c *config.Config, v string) error { c.Server.LogLevel = v; return nil },
	"server.http_addr": func(c *config.Config, v string) error { c.Server.HTTPAddr = v; return nil },
	"index.limit": func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Index.Limit = n
		return err
	},
	"index.min_score": func(c *config.Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		c.Index.MinScore = f
		return err
	},
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newConfigSetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the user configuration",
		Long: "Change one setting in the user configuration. The previous file is backed up.\n\nKeys:\n  " +
			strings.Join(configKeys(), "\n  "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			set, ok := configSetters[key]
			if !ok {
				return amerrors.ValidationError("unknown config key "+key, nil).
					WithSuggestion("use one of: " + strings.Join(configKeys(), ", "))
			}

			// Validate against the defaults so a partial user file is not rejected.
			probe := config.NewConfig()
			if err := set(probe, value); err != nil {
				return amerrors.ConfigError(fmt.Sprintf("invalid value %q for %s", value, key), err)
			}
			if err := probe.Validate(); err != nil {
				return err
			}

			cfg, err := config.LoadUserConfig()
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = &config.Config{Version: 1}
			}
			_ = set(cfg, value)

			backup, err := config.WriteUserConfig(cfg)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout(), root.noColor)
			out.Successf("Set %s = %s", key, value)
			if backup != "" {
				out.Statusf("💾", "Backup: %s", backup)
			}
			return nil
		},
	}
}

func newConfigBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List user config backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}
			for _, b := range backups {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the user config from a backup (default: newest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var backup string
			if len(args) == 1 {
				backup = args[0]
			} else {
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					return amerrors.ValidationError("no config backups found", nil)
				}
				backup = backups[0]
			}
			if err := config.RestoreUserConfig(backup); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout(), root.noColor).Successf("Restored %s", backup)
			return nil
		},
	}
}
