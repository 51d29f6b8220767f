package provision

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/docker/docker/client"
)

// composeFile returns the compose manifest name for a tier.
func composeFile(t Tier) string {
	return fmt.Sprintf("docker-compose.%s.yml", t)
}

// stopResidue tears down any stack left over from a previous failed
// attempt at this tier, so auto-start always begins from a clean slate
// (spec §4.11 probe 5 "stop any residue").
func stopResidue(ctx context.Context, opts Options, t Tier) error {
	return composeDown(ctx, opts, t)
}

func composeDown(ctx context.Context, opts Options, t Tier) error {
	file := filepath.Join(opts.ComposeDir, composeFile(t))
	if _, err := os.Stat(file); err != nil {
		return nil // nothing to stop
	}
	cmd := exec.CommandContext(ctx, "docker", "compose", "-f", file, "down", "--volumes")
	cmd.Dir = opts.ComposeDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("compose down %s: %w (%s)", t, err, string(out))
	}
	return nil
}

// runSetupGenerator writes the auth credentials and replica-set keyfile a
// replicaset/fullstack tier needs before compose can bring the stack up
// (spec §4.11 "run the setup generator (when the tier requires auth/
// keyfile material)"). Standalone needs neither and is a no-op.
func runSetupGenerator(t Tier, composeDir string) error {
	if t == TierStandalone {
		return nil
	}

	secretsDir := filepath.Join(composeDir, ".clawmongo-secrets")
	if err := os.MkdirAll(secretsDir, 0o700); err != nil {
		return fmt.Errorf("provision: create secrets dir: %w", err)
	}

	keyfilePath := filepath.Join(secretsDir, "keyfile")
	if _, err := os.Stat(keyfilePath); os.IsNotExist(err) {
		key := make([]byte, 756)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("provision: generate keyfile: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(key)
		if err := os.WriteFile(keyfilePath, []byte(encoded), 0o600); err != nil {
			return fmt.Errorf("provision: write keyfile: %w", err)
		}
	}

	envPath := filepath.Join(secretsDir, ".env")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		password := make([]byte, 24)
		if _, err := rand.Read(password); err != nil {
			return fmt.Errorf("provision: generate password: %w", err)
		}
		contents := fmt.Sprintf("MONGO_INITDB_ROOT_USERNAME=clawmongo\nMONGO_INITDB_ROOT_PASSWORD=%s\n",
			base64.RawURLEncoding.EncodeToString(password))
		if err := os.WriteFile(envPath, []byte(contents), 0o600); err != nil {
			return fmt.Errorf("provision: write .env: %w", err)
		}
	}

	return nil
}

// composeUp brings the tier's compose stack up in the background.
func composeUp(ctx context.Context, opts Options, t Tier) error {
	file := filepath.Join(opts.ComposeDir, composeFile(t))
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("provision: no compose manifest for tier %s at %s: %w", t, file, err)
	}
	cmd := exec.CommandContext(ctx, "docker", "compose", "-f", file, "up", "-d")
	cmd.Dir = opts.ComposeDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("compose up %s: %w (%s)", t, err, string(out))
	}
	return nil
}

// waitHealthy polls the named container's health status until it reports
// "healthy", the container exits/unhealthy's, or timeout elapses (spec
// §4.11 "poll health until the primary container is healthy or a
// configurable timeout expires").
func waitHealthy(ctx context.Context, cli *client.Client, name string, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := containerHealth(ctx, cli, name)
		if err == nil {
			switch status {
			case "healthy":
				return nil
			case "unhealthy":
				return fmt.Errorf("container %s reported unhealthy", name)
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s to become healthy", name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// containerHealth inspects name and returns its health status string
// ("healthy", "unhealthy", "starting", or "" if the container defines no
// healthcheck).
func containerHealth(ctx context.Context, cli *client.Client, name string) (string, error) {
	inspectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := cli.ContainerInspect(inspectCtx, name)
	if err != nil {
		return "", err
	}
	if info.State == nil || info.State.Health == nil {
		// No healthcheck defined: treat a running container as healthy.
		if info.State != nil && info.State.Running {
			return "healthy", nil
		}
		return "starting", nil
	}
	return info.State.Health.Status, nil
}
