package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/romiluz13/clawmongo/internal/config"
	"github.com/romiluz13/clawmongo/internal/doctor"
	"github.com/romiluz13/clawmongo/internal/output"
	"github.com/romiluz13/clawmongo/internal/provision"
)

func newSetupCmd() *cobra.Command {
	var (
		check bool
		auto  bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set up the clawmongo MongoDB backend",
		Long: `Set up clawmongo's persistent memory backend (spec §4.11 Auto-Provisioner).

This command will, in order:
1. Probe for an existing reachable MongoDB instance
2. Reuse an already-running managed container
3. Start one with docker compose, trying the fullstack, replicaset and
   standalone tiers in turn
4. Write the resolved URI to the project configuration

Use --auto for non-interactive mode (e.g. CI, Homebrew post-install).`,
		Example: `  # Interactive setup
  clawmongo setup

  # Check status only, don't provision anything
  clawmongo setup --check

  # Non-interactive setup (for scripts)
  clawmongo setup --auto`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSetup(ctx, cmd, check, auto)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only check status, don't provision")
	cmd.Flags().BoolVar(&auto, "auto", false, "Non-interactive mode (always proceed)")

	return cmd
}

func runSetup(ctx context.Context, cmd *cobra.Command, checkOnly, auto bool) error {
	out := output.New(cmd.OutOrStdout())

	out.Status("🔧", "clawmongo setup")
	out.Newline()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	if cfg.Mongo.URI != "" {
		out.Statusf("✓", "MongoDB URI already configured: %s", doctor.RedactURI(cfg.Mongo.URI))
		if checkOnly {
			return nil
		}
	} else if checkOnly {
		out.Warning("No MongoDB URI configured")
		out.Status("💡", "Run 'clawmongo setup' to provision one")
		return nil
	} else {
		out.Status("🔍", "Probing for a MongoDB deployment...")
		prompt := provision.AlwaysYes
		if !auto {
			prompt = promptYesNo(out)
		}

		result, err := provision.AttemptAutoSetup(ctx, provision.Options{}, prompt)
		if err != nil {
			return fmt.Errorf("auto-provision mongodb: %w", err)
		}
		if !result.Success {
			out.Warningf("Could not provision a MongoDB deployment: %s", result.Reason)
			out.Status("💡", "Set mongo.uri in .clawmongo.yaml or CLAWMONGO_MONGO_URI manually")
			return fmt.Errorf("mongodb provisioning failed: %s", result.Reason)
		}

		out.Successf("Resolved MongoDB URI via %s (%s tier)", result.Source, result.Tier)
		cfg.Mongo.URI = result.URI

		yamlPath := projectConfigPath(root)
		if err := cfg.WriteYAML(yamlPath); err != nil {
			out.Warningf("Failed to persist URI to %s: %v", yamlPath, err)
		} else {
			out.Statusf("💾", "Saved to %s", yamlPath)
		}
	}

	out.Newline()
	out.Status("🔍", "Verifying embedder...")
	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		out.Warningf("Embedder verification failed: %v", err)
		return err
	}
	defer func() { _ = embedder.Close() }()

	out.Newline()
	out.Success("Setup complete!")
	out.Statusf("", "  Provider:   %s", embedder.ModelName())
	out.Statusf("", "  Dimensions: %d", embedder.Dimensions())
	out.Newline()
	out.Status("🚀", "Ready! Run 'clawmongo init' to configure this project.")

	return nil
}

func promptYesNo(out *output.Writer) provision.Prompter {
	return func(msg string) bool {
		out.Statusf("❓", "%s [Y/n] ", msg)
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		line = strings.ToLower(strings.TrimSpace(line))
		return line == "" || line == "y" || line == "yes"
	}
}
