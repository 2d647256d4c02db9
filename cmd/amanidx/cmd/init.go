package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/configs"
	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/output"
)

// MCPServerConfig is one server entry in .mcp.json.
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig is the root of .mcp.json.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

const mcpServerName = "amanidx"

type initOptions struct {
	force      bool
	configOnly bool
	noMCP      bool
}

func newInitCmd(root *rootOptions) *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up amanidx for a project",
		Long: `Set up amanidx in the project directory:

1. Write .amanidx.yaml with the documented defaults
2. Add .amanidx/ to .gitignore
3. Register 'amanidx serve' in .mcp.json for MCP clients
4. Build the first index (skip with --config-only)`,
		Example: `  amanidx init
  amanidx init --force --config-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite existing .amanidx.yaml and .mcp.json entry")
	cmd.Flags().BoolVar(&opts.configOnly, "config-only", false, "Write configuration files but do not index")
	cmd.Flags().BoolVar(&opts.noMCP, "no-mcp", false, "Do not touch .mcp.json")

	return cmd
}

func runInit(cmd *cobra.Command, root *rootOptions, opts initOptions) error {
	out := output.New(cmd.OutOrStdout(), root.noColor)

	projectRoot, err := filepath.Abs(root.dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	out.Statusf("📁", "Project: %s", projectRoot)

	written, err := writeProjectConfig(projectRoot, opts.force)
	if err != nil {
		return err
	}
	if written {
		out.Statusf("📝", "Created %s", config.ProjectFileNames[0])
	} else {
		out.Status("ℹ️ ", "Keeping existing project config (use --force to overwrite)")
	}

	added, err := ensureGitignore(projectRoot)
	if err != nil {
		out.Warningf("Could not update .gitignore: %v", err)
	} else if added {
		out.Statusf("📝", "Added %s/ to .gitignore", index.DefaultDataDir)
	}

	if !opts.noMCP {
		path, err := configureMCPJSON(projectRoot, opts.force)
		switch {
		case err != nil:
			out.Warningf("Could not configure .mcp.json: %v", err)
		case path != "":
			out.Statusf("📝", "Registered %s in %s", mcpServerName, path)
		default:
			out.Status("ℹ️ ", mcpServerName+" already configured in .mcp.json")
		}
	}

	if opts.configOnly {
		out.Success("Configuration written")
		return nil
	}

	out.Newline()
	if err := runIndex(cmd.Context(), cmd, root, indexOptions{noTUI: true}); err != nil {
		return err
	}
	out.Newline()
	out.Success("amanidx is ready")
	out.Status("", "Try:")
	out.Code("amanidx search \"<query>\"\namanidx serve")
	return nil
}

// writeProjectConfig writes the template unless a project config already
// exists. It reports whether a file was written.
func writeProjectConfig(projectRoot string, force bool) (bool, error) {
	existing := config.ProjectConfigPath(projectRoot)
	if existing != "" && !force {
		return false, nil
	}
	path := existing
	if path == "" {
		path = filepath.Join(projectRoot, config.ProjectFileNames[0])
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// hasDataDirIgnore checks if the data directory is already in .gitignore.
func hasDataDirIgnore(content string) bool {
	name := index.DefaultDataDir
	patterns := []string{name, name + "/", "/" + name, "/" + name + "/"}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, p := range patterns {
			if line == p {
				return true
			}
		}
	}
	return false
}

// ensureGitignore appends the data directory to .gitignore if missing.
// Returns (true, nil) if added.
func ensureGitignore(projectRoot string) (bool, error) {
	path := filepath.Join(projectRoot, ".gitignore")
	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}
	if hasDataDirIgnore(string(content)) {
		return false, nil
	}

	eol := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		eol = "\r\n"
	}
	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, eol...)
	}
	if len(content) > 0 {
		content = append(content, eol...)
	}
	content = append(content, "# amanidx index data"+eol+index.DefaultDataDir+"/"+eol...)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}
	return true, nil
}

// configureMCPJSON adds an amanidx entry to .mcp.json, keeping other
// servers. It returns "" when the entry already existed and force is off.
func configureMCPJSON(projectRoot string, force bool) (string, error) {
	path := filepath.Join(projectRoot, ".mcp.json")

	cfg := MCPConfig{MCPServers: map[string]MCPServerConfig{}}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse existing .mcp.json: %w", err)
		}
		if cfg.MCPServers == nil {
			cfg.MCPServers = map[string]MCPServerConfig{}
		}
		if _, exists := cfg.MCPServers[mcpServerName]; exists && !force {
			return "", nil
		}
	}

	bin, err := findBinary()
	if err != nil {
		return "", err
	}
	cfg.MCPServers[mcpServerName] = MCPServerConfig{
		Type:    "stdio",
		Command: bin,
		Args:    []string{"serve"},
		Cwd:     projectRoot,
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write .mcp.json: %w", err)
	}
	return path, nil
}

// findBinary prefers the running executable, then PATH.
func findBinary() (string, error) {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			return resolved, nil
		}
		return exe, nil
	}
	path, err := exec.LookPath("amanidx")
	if err != nil {
		return "", fmt.Errorf("amanidx not found in PATH: %w", err)
	}
	return path, nil
}
