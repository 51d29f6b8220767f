package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/romiluz13/clawmongo/configs"
	"github.com/romiluz13/clawmongo/internal/config"
	"github.com/romiluz13/clawmongo/internal/output"
	"github.com/romiluz13/clawmongo/pkg/version"
)

// MCPServerConfig represents the MCP server configuration in .mcp.json
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig represents the root .mcp.json structure
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		global     bool
		force      bool
		configOnly bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize clawmongo for a project",
		Long: `Initialize clawmongo for the current project.

This command:
1. Configures Claude Code MCP integration (via 'claude mcp add' or .mcp.json)
2. Generates .clawmongo.yaml configuration template
3. Provisions (or verifies) the MongoDB backend and embedding provider

After running, restart Claude Code to activate the MCP server.`,
		Example: `  # Initialize in current project
  clawmongo init

  # Initialize globally (available in all projects)
  clawmongo init --global

  # Force reinitialize (overwrite existing config)
  clawmongo init --force

  # Configure MCP only, skip backend verification
  clawmongo init --force --config-only`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runInit(ctx, cmd, global, force, configOnly)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Configure for all projects (user scope)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&configOnly, "config-only", false, "Configure MCP only, skip backend verification")

	return cmd
}

// clawmongoStartMarker is the HTML comment that marks the beginning of the
// clawmongo guide section in CLAUDE.md.
const clawmongoStartMarker = "<!-- clawmongo:start -->"

// clawmongoGuideContent is the usage guide added to CLAUDE.md.
const clawmongoGuideContent = `<!-- clawmongo:start -->
## clawmongo Memory (Use by Default)

**clawmongo remembers across sessions** - persistent workspace memory, session
history, and a knowledge base, all backed by MongoDB hybrid search.

### Decision Rule

| Need | Tool | Example |
|------|------|---------|
| **Recall prior decisions/context** | ` + "`mcp__clawmongo__memory_search`" + ` | "what did we decide about retries?" |
| **Read a remembered file/range** | ` + "`mcp__clawmongo__memory_get`" + ` | fetch lines from a remembered document |
| **Search imported docs** | ` + "`mcp__clawmongo__kb_search`" + ` | "deployment runbook" |
| **Save a new fact/decision** | ` + "`mcp__clawmongo__memory_write`" + ` | "we chose scoreFusion for ranking" |
| **Exact text in the working tree** | Grep | ` + "`func NewClient(`" + ` |

### Workflow: Search → Read → Act

` + "```" + `
# 1. Recall prior context
mcp__clawmongo__memory_search("retry logic decisions")

# 2. Fetch the referenced document (if needed)
mcp__clawmongo__memory_get(path, from, lines)

# 3. Record new decisions as they're made
mcp__clawmongo__memory_write("...")
` + "```" + `
<!-- clawmongo:end -->
`

// hasClawmongoGuide checks if CLAUDE.md contains the clawmongo guide section.
func hasClawmongoGuide(path string) (bool, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading CLAUDE.md: %w", err)
	}
	return strings.Contains(string(content), clawmongoStartMarker), nil
}

// hasClawmongoIgnore checks if .clawmongo is already in .gitignore.
func hasClawmongoIgnore(content string) bool {
	patterns := []string{".clawmongo", ".clawmongo/", "/.clawmongo", "/.clawmongo/"}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, pattern := range patterns {
			if line == pattern {
				return true
			}
		}
	}
	return false
}

// ensureGitignore adds .clawmongo to .gitignore if not present.
func ensureGitignore(projectRoot string) (bool, error) {
	gitignorePath := filepath.Join(projectRoot, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}

	if hasClawmongoIgnore(string(content)) {
		return false, nil
	}

	lineEnding := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		lineEnding = "\r\n"
	}

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, []byte(lineEnding)...)
	}

	var entry string
	if len(content) == 0 {
		entry = fmt.Sprintf("# clawmongo local state (auto-generated)%s.clawmongo/%s", lineEnding, lineEnding)
	} else {
		entry = fmt.Sprintf("%s# clawmongo local state (auto-generated)%s.clawmongo/%s", lineEnding, lineEnding, lineEnding)
	}
	content = append(content, []byte(entry)...)

	if err := os.WriteFile(gitignorePath, content, 0644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}

	return true, nil
}

// ensureClawmongoGuide adds the guide section to CLAUDE.md if not present.
func ensureClawmongoGuide(path string) (bool, error) {
	fileExists := true
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fileExists = false
	}

	if fileExists {
		hasGuide, err := hasClawmongoGuide(path)
		if err != nil {
			return false, err
		}
		if hasGuide {
			return false, nil
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return false, fmt.Errorf("opening CLAUDE.md: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString("\n\n" + clawmongoGuideContent); err != nil {
			return false, fmt.Errorf("appending to CLAUDE.md: %w", err)
		}
		return true, nil
	}

	if err := os.WriteFile(path, []byte(clawmongoGuideContent), 0644); err != nil {
		return false, fmt.Errorf("creating CLAUDE.md: %w", err)
	}
	return true, nil
}

// generateProjectYAML creates a template .clawmongo.yaml if it doesn't exist.
// The template is embedded at build time from configs/project-config.example.yaml
// (see configs/embed.go) so it ships with binary distributions too.
func generateProjectYAML(out *output.Writer, projectRoot string) error {
	yamlPath := projectConfigPath(projectRoot)
	if _, err := os.Stat(yamlPath); err == nil {
		out.Status("ℹ️ ", "Existing .clawmongo.yaml preserved")
		return nil
	}

	ymlPath := filepath.Join(projectRoot, ".clawmongo.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		out.Status("ℹ️ ", "Existing .clawmongo.yml found, skipping template")
		return nil
	}

	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write .clawmongo.yaml: %w", err)
	}

	out.Statusf("📝", "Created .clawmongo.yaml (optional project configuration)")
	return nil
}

// validateExistingMCPConfig checks if existing .mcp.json has required fields.
func validateExistingMCPConfig(mcpPath string) (bool, []string) {
	var warnings []string

	data, err := os.ReadFile(mcpPath)
	if err != nil {
		return false, nil
	}

	var cfg MCPConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		warnings = append(warnings, "Invalid JSON in .mcp.json")
		return false, warnings
	}

	clawmongo, exists := cfg.MCPServers["clawmongo"]
	if !exists {
		warnings = append(warnings, "clawmongo not configured in .mcp.json")
		return false, warnings
	}

	if clawmongo.Cwd == "" {
		warnings = append(warnings, "Missing 'cwd' field - MCP server may run from wrong directory")
	}
	if clawmongo.Command == "" {
		warnings = append(warnings, "Missing 'command' field")
	}

	return len(warnings) == 0, warnings
}

func runInit(ctx context.Context, cmd *cobra.Command, global, force, configOnly bool) error {
	out := output.New(cmd.OutOrStdout())

	out.Statusf("🚀", "clawmongo %s - Initializing...", version.Version)
	out.Newline()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		root = cwd
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	out.Statusf("📁", "Project: %s", absRoot)

	mcpConfigPath := filepath.Join(absRoot, ".mcp.json")

	if !force {
		if _, err := os.Stat(mcpConfigPath); err == nil {
			isValid, warnings := validateExistingMCPConfig(mcpConfigPath)
			out.Newline()

			if !isValid && len(warnings) > 0 {
				out.Warning("Existing .mcp.json has configuration issues:")
				for _, w := range warnings {
					out.Statusf("  ⚠️ ", "%s", w)
				}
				out.Newline()
				out.Status("💡", "Use --force to fix these issues")
				return nil
			}

			out.Warning("Project already initialized (.mcp.json exists)")
			out.Status("💡", "Use --force to reinitialize")
			return nil
		}
	}

	out.Newline()
	out.Status("⚙️ ", "Configuring MCP integration...")

	mcpConfigured, err := configureMCP(ctx, out, absRoot, global, force)
	if err != nil {
		out.Warningf("MCP configuration failed: %v", err)
		out.Status("💡", "You can manually configure .mcp.json later")
	} else if mcpConfigured {
		if global {
			out.Success("Added MCP server (user scope - all projects)")
		} else {
			out.Success("Added MCP server (project scope)")
		}
	}

	if err := generateProjectYAML(out, absRoot); err != nil {
		out.Warningf("Could not create .clawmongo.yaml template: %v", err)
	}

	claudeMDPath := filepath.Join(absRoot, "CLAUDE.md")
	added, err := ensureClawmongoGuide(claudeMDPath)
	if err != nil {
		out.Warningf("Could not update CLAUDE.md: %v", err)
	} else if added {
		out.Success("Added clawmongo usage guide to CLAUDE.md")
	} else {
		out.Status("ℹ️ ", "CLAUDE.md already has clawmongo guide")
	}

	added, err = ensureGitignore(absRoot)
	if err != nil {
		out.Warningf("Could not update .gitignore: %v", err)
	} else if added {
		out.Status("📝", "Added .clawmongo to .gitignore")
	}

	if configOnly {
		out.Newline()
		out.Status("⏭️ ", "Skipping backend verification (--config-only)")
	} else {
		out.Newline()
		out.Status("🧠", "Verifying MongoDB backend and embedder...")

		m, err := buildManager(ctx, absRoot)
		if err != nil {
			out.Warningf("Backend verification failed: %v", err)
			out.Status("💡", "Run 'clawmongo setup' to provision a mongodb backend, or 'clawmongo init --config-only' to skip this step")
			return fmt.Errorf("backend verification: %w", err)
		}
		if m == nil {
			out.Warning("Persistent memory is disabled (no mongodb backend configured)")
			out.Status("💡", "Run 'clawmongo setup' to provision one")
		} else {
			status := m.Status()
			out.Successf("Connected (backend: %s, embeddings: %s)", status.Backend, status.Provider)
			_ = m.Close(ctx)
		}
	}

	out.Newline()
	if configOnly {
		out.Success("Configuration complete!")
	} else {
		out.Success("Initialization complete!")
	}
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Restart Claude Code to activate MCP server")
	out.Status("", "  2. Test with: \"What have we decided about...?\"")
	out.Status("", "  3. Run 'clawmongo doctor' to verify setup")

	if !config.UserConfigExists() {
		out.Newline()
		out.Status("💡", "For machine-specific settings (MongoDB URI, embedding provider):")
		out.Status("", "   Run 'clawmongo config init' to create user config")
	}

	if !mcpConfigured {
		out.Newline()
		out.Warning("MCP not auto-configured - manual setup required")
		out.Status("💡", fmt.Sprintf("Add to .mcp.json: %s", mcpConfigPath))
	}

	return nil
}

// configureMCP attempts to configure MCP via the claude CLI, falling back to
// writing .mcp.json directly.
func configureMCP(ctx context.Context, out *output.Writer, projectRoot string, global, force bool) (bool, error) {
	if claudeConfigured, err := configureViaClaude(ctx, out, projectRoot, global, force); err == nil && claudeConfigured {
		return true, nil
	}

	return configureViaMCPJSON(ctx, out, projectRoot, force)
}

// configureViaClaude attempts to use 'claude mcp add'. Only used for global
// scope: project scope needs the 'cwd' field, which only .mcp.json supports.
func configureViaClaude(ctx context.Context, out *output.Writer, projectRoot string, global, _ bool) (bool, error) {
	if !global {
		out.Status("ℹ️ ", "Using .mcp.json for project scope (supports cwd)")
		return false, nil
	}

	claudePath, err := exec.LookPath("claude")
	if err != nil {
		out.Status("ℹ️ ", "Claude CLI not found, using .mcp.json fallback")
		return false, nil
	}

	out.Statusf("🔍", "Found Claude CLI: %s", claudePath)

	binPath, err := findClawmongoBinary()
	if err != nil {
		return false, fmt.Errorf("failed to find clawmongo binary: %w", err)
	}

	args := []string{"mcp", "add", "--transport", "stdio", "--scope", "user", "clawmongo", "--", binPath, "serve"}

	cmd := exec.CommandContext(ctx, claudePath, args...)
	cmd.Dir = projectRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return false, fmt.Errorf("claude mcp add failed: %w", err)
	}

	return true, nil
}

// configureViaMCPJSON creates or updates .mcp.json in the project root.
func configureViaMCPJSON(_ context.Context, out *output.Writer, projectRoot string, force bool) (bool, error) {
	mcpPath := filepath.Join(projectRoot, ".mcp.json")

	var existingConfig MCPConfig
	if data, err := os.ReadFile(mcpPath); err == nil {
		if err := json.Unmarshal(data, &existingConfig); err != nil {
			return false, fmt.Errorf("failed to parse existing .mcp.json: %w", err)
		}

		if _, exists := existingConfig.MCPServers["clawmongo"]; exists && !force {
			out.Status("ℹ️ ", "clawmongo already configured in .mcp.json")
			return true, nil
		}
	} else {
		existingConfig = MCPConfig{MCPServers: make(map[string]MCPServerConfig)}
	}

	binPath, err := findClawmongoBinary()
	if err != nil {
		return false, fmt.Errorf("failed to find clawmongo binary: %w", err)
	}

	existingConfig.MCPServers["clawmongo"] = MCPServerConfig{
		Type:    "stdio",
		Command: binPath,
		Args:    []string{"serve"},
		Cwd:     projectRoot,
	}

	data, err := json.MarshalIndent(existingConfig, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(mcpPath, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write .mcp.json: %w", err)
	}

	out.Statusf("📝", "Created %s", mcpPath)
	return true, nil
}

// findClawmongoBinary locates the clawmongo binary: itself, or PATH.
func findClawmongoBinary() (string, error) {
	execPath, err := os.Executable()
	if err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			return realPath, nil
		}
		return execPath, nil
	}

	path, err := exec.LookPath("clawmongo")
	if err != nil {
		return "", fmt.Errorf("clawmongo not found in PATH: %w", err)
	}

	return path, nil
}
