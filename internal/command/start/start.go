package start

import (
	"context"
	"time"

	"github.com/sethvargo/go-githubactions"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mtsoltan/ec2-github-runner/internal/cloud"
	"github.com/mtsoltan/ec2-github-runner/internal/command/root"
	"github.com/mtsoltan/ec2-github-runner/internal/config"
	"github.com/mtsoltan/ec2-github-runner/internal/signal"
	"github.com/mtsoltan/ec2-github-runner/internal/util"
)

func init() {
	root.Cmd.AddCommand(cmd)
}

// tokenSource is the slice of the GitHub client the start flow needs.
type tokenSource interface {
	GetRegistrationToken(ctx context.Context) (string, error)
}

var cmd = &cobra.Command{
	Use:   "start",
	Short: "Provision the runner instance",
	Long:  `Launches (or resumes) the EC2 instance, waits until it is running and the runner is registered, and exposes the label and instance id as step outputs`,
	Run: func(cmd *cobra.Command, args []string) {
		log.Info("starting runner instance")

		ctx := signal.WatchInterrupt(context.Background(), 10*time.Second)
		cmpt := root.GetComponent(ctx)
		cfg := cmpt.Config

		if err := cfg.ValidateStart(); err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}

		label, instanceID, err := provision(ctx, cfg, cmpt.Cloud, cmpt.GitHub)

		if err != nil {
			log.WithError(err).Fatal("unable to provision runner instance")
		}

		if err = cmpt.GitHub.WaitForRunnerRegistered(ctx, label); err != nil {
			log.WithError(err).Fatal("runner never registered")
		}

		githubactions.SetOutput("label", label)
		githubactions.SetOutput("ec2-instance-id", instanceID)

		log.WithFields(log.Fields{
			"label":    label,
			"instance": instanceID,
		}).Info("runner instance ready")
	},
}

// provision brings up the instance and returns the runner label and the
// instance id. With a configured instance id it resumes that instance and
// starts the pre-installed runner over SSM; otherwise it launches a fresh
// instance whose boot script installs and registers the runner.
func provision(ctx context.Context, cfg *config.Config, provider cloud.Provider, tokens tokenSource) (string, string, error) {
	if cfg.InstanceID != "" {
		instanceID, err := provider.Resume(ctx, cfg.InstanceID)

		if err != nil {
			return "", "", err
		}

		if err = provider.WaitForRunning(ctx, instanceID); err != nil {
			return "", "", err
		}

		provider.StartRunner(ctx, instanceID)

		return cfg.Label, instanceID, nil
	}

	token, err := tokens.GetRegistrationToken(ctx)

	if err != nil {
		return "", "", err
	}

	githubactions.AddMask(token)

	label := cfg.Label

	if label == "" {
		label = "ec2-" + util.RandomLabel(5)
		log.Infof("generated runner label '%s'", label)
	}

	instanceID, err := provider.Launch(ctx, label, token)

	if err != nil {
		return "", "", err
	}

	if err = provider.WaitForRunning(ctx, instanceID); err != nil {
		return "", "", err
	}

	return label, instanceID, nil
}
