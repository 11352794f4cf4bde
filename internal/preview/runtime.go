package preview

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runtime is the detected container engine: a small string enum with
// a lookup-path based detector that prefers docker and falls back to
// podman.
type Runtime string

const (
	RuntimeDocker Runtime = "docker"
	RuntimePodman Runtime = "podman"
	RuntimeNone   Runtime = ""
)

func detectRuntime() Runtime {
	if _, err := exec.LookPath("docker"); err == nil {
		return RuntimeDocker
	}
	if _, err := exec.LookPath("podman"); err == nil {
		return RuntimePodman
	}
	return RuntimeNone
}

// runContainerCmd is injectable in tests, following the common
// exec.CommandContext + CombinedOutput pattern for shelling out to a
// subprocess and capturing its output.
var runContainerCmd = func(ctx context.Context, runtime Runtime, args ...string) (string, error) {
	if runtime == RuntimeNone {
		return "", fmt.Errorf("preview: no container runtime (docker/podman) found")
	}
	cmd := exec.CommandContext(ctx, string(runtime), args...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
