package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	amanerrors "github.com/romiluz13/clawmongo/internal/errors"
)

// AttemptAutoSetup implements spec §4.11's attemptAutoSetup(prompter): it
// runs the five ordered probes, returning as soon as one succeeds, and
// only falling through to auto-start (probe 5) once every cheaper option
// has failed.
func AttemptAutoSetup(ctx context.Context, opts Options, prompt Prompter) (*Result, error) {
	opts = opts.withDefaults()
	if prompt == nil {
		prompt = AlwaysYes
	}

	// Probe 1: existing instance.
	if uri, ok := probeExistingInstance(ctx, opts.CandidateURIs); ok {
		slog.Info("provision: found existing reachable instance")
		return &Result{Success: true, URI: uri, Source: SourceExisting}, nil
	}

	// Probe 2: container runtime.
	runtimeOK, reason := probeContainerRuntime(ctx)
	if !runtimeOK {
		return &Result{Success: false, Reason: "no container runtime available: " + reason}, nil
	}

	// Probe 3: already-running managed container.
	if tier, uri, found := probeManagedContainer(ctx, opts.ContainerNames); found {
		slog.Info("provision: found already-running managed container", slog.String("tier", string(tier)))
		return &Result{Success: true, URI: uri, Tier: tier, Source: SourceManaged}, nil
	}

	// Probe 4: port availability.
	if portOK, reason := probePortAvailable(opts.Port); !portOK {
		return &Result{Success: false, Reason: reason}, nil
	}

	if !prompt(fmt.Sprintf("No MongoDB instance found. Start one with docker compose (port %d)?", opts.Port)) {
		return &Result{Success: false, Reason: "auto-start declined by operator"}, nil
	}

	// Probe 5: auto-start with tier fallback.
	return autoStart(ctx, opts)
}

// autoStart is spec §4.11 probe 5: try each tier in order, stopping
// residue, generating auth material when needed, bringing the stack up,
// and polling for health before giving up on a tier.
func autoStart(ctx context.Context, opts Options) (*Result, error) {
	var failures []string

	for _, t := range Tiers {
		if err := stopResidue(ctx, opts, t); err != nil {
			slog.Warn("provision: failed to stop residue", slog.String("tier", string(t)), slog.String("error", err.Error()))
		}

		if err := runSetupGenerator(t, opts.ComposeDir); err != nil {
			failures = append(failures, fmt.Sprintf("%s: setup generator failed: %v", t, err))
			continue
		}

		if err := composeUp(ctx, opts, t); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", t, err))
			continue
		}

		cli, err := newDockerClient()
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: docker client init failed: %v", t, err))
			_ = composeDown(ctx, opts, t)
			continue
		}

		primaryName := opts.ContainerNames[t]
		healthErr := waitHealthy(ctx, cli, primaryName, opts.HealthTimeout, opts.PollInterval)
		if healthErr == nil && t == TierFullstack {
			healthErr = waitHealthy(ctx, cli, opts.SearchContainerName, opts.HealthTimeout, opts.PollInterval)
		}
		cli.Close()

		if healthErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", t, healthErr))
			_ = composeDown(ctx, opts, t)
			continue
		}

		slog.Info("provision: auto-start succeeded", slog.String("tier", string(t)))
		return &Result{Success: true, URI: uriForManagedTier(t), Tier: t, Source: SourceAutoStart}, nil
	}

	for _, t := range Tiers {
		_ = composeDown(ctx, opts, t)
	}

	aggErr := amanerrors.ProvisionError(
		fmt.Sprintf("auto-start exhausted all tiers: %s", strings.Join(failures, "; ")), nil)
	return &Result{Success: false, Reason: aggErr.Error()}, nil
}
