package cloud

import (
	"fmt"
	"strings"

	"github.com/mtsoltan/ec2-github-runner/internal/config"
)

// BootScript renders the shell script delivered as instance user data and
// executed once at first boot. It installs the runner (unless a
// pre-installed home directory is configured), registers it against the
// repository with the given token and label, and starts it as the UID-1000
// user when one exists, else as root.
func BootScript(cfg *config.Config, label string, registrationToken string) string {
	lines := []string{"#!/bin/bash"}

	if cfg.RunnerHomeDir != "" {
		lines = append(lines, fmt.Sprintf(`cd "%s"`, cfg.RunnerHomeDir))
	} else {
		archive := fmt.Sprintf("actions-runner-linux-${RUNNER_ARCH}-%s.tar.gz", cfg.RunnerVersion)

		lines = append(lines,
			"mkdir -p actions-runner && cd actions-runner",
			`case $(uname -m) in aarch64) RUNNER_ARCH="arm64" ;; amd64|x86_64) RUNNER_ARCH="x64" ;; esac`,
			fmt.Sprintf("curl -O -L https://github.com/actions/runner/releases/download/v%s/%s", cfg.RunnerVersion, archive),
			fmt.Sprintf("tar xzf ./%s", archive),
		)
	}

	if cfg.PreRunnerScript != "" {
		lines = append(lines,
			"cat > pre-runner-script.sh <<'EOF'",
			cfg.PreRunnerScript,
			"EOF",
			"source pre-runner-script.sh",
		)
	}

	lines = append(lines,
		`RUNNER_USER=$(id -nu 1000 2>/dev/null || echo root)`,
		`chown -R "${RUNNER_USER}" .`,
		fmt.Sprintf(`su "${RUNNER_USER}" -c "RUNNER_ALLOW_RUNASROOT=1 ./config.sh --url %s --token %s --labels %s"`,
			cfg.RegistrationURL(), registrationToken, label),
		`su "${RUNNER_USER}" -c "RUNNER_ALLOW_RUNASROOT=1 ./run.sh"`,
	)

	return strings.Join(lines, "\n")
}
