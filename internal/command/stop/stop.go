package stop

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mtsoltan/ec2-github-runner/internal/cloud"
	"github.com/mtsoltan/ec2-github-runner/internal/command/root"
	"github.com/mtsoltan/ec2-github-runner/internal/config"
	"github.com/mtsoltan/ec2-github-runner/internal/signal"
)

func init() {
	root.Cmd.AddCommand(cmd)
}

// runnerRemover is the slice of the GitHub client the stop flow needs.
type runnerRemover interface {
	RemoveRunner(ctx context.Context, label string) error
}

var cmd = &cobra.Command{
	Use:   "stop",
	Short: "Tear the runner instance down",
	Long:  `Terminates the EC2 instance (or stops it when keep-instance is set) and deregisters the runner from the repository`,
	Run: func(cmd *cobra.Command, args []string) {
		log.Info("stopping runner instance")

		ctx := signal.WatchInterrupt(context.Background(), 10*time.Second)
		cmpt := root.GetComponent(ctx)
		cfg := cmpt.Config

		if err := cfg.ValidateStop(); err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}

		if err := teardown(ctx, cfg, cmpt.Cloud); err != nil {
			log.WithError(err).Fatal("unable to tear down runner instance")
		}

		deregister(ctx, cfg, cmpt.GitHub)

		log.Infof("runner instance '%s' torn down", cfg.InstanceID)
	},
}

// teardown stops the configured instance when it is meant to be reused,
// otherwise terminates it.
func teardown(ctx context.Context, cfg *config.Config, provider cloud.Provider) error {
	if cfg.KeepInstance {
		if err := provider.Stop(ctx); err != nil {
			return err
		}

		return provider.WaitForStopped(ctx, cfg.InstanceID)
	}

	return provider.Terminate(ctx)
}

// deregister removes the runner from the repository after a terminate. A
// kept instance resumes with its saved credentials, so its registration
// must survive the stop. Removal failures are logged only: the instance is
// already gone and a stale runner drops off the repository on its own.
func deregister(ctx context.Context, cfg *config.Config, runners runnerRemover) {
	if cfg.KeepInstance {
		log.Infof("keeping runner '%s' registered for later resume", cfg.Label)
		return
	}

	if err := runners.RemoveRunner(ctx, cfg.Label); err != nil {
		log.WithError(err).Warnf("instance torn down but runner '%s' was not removed", cfg.Label)
	}
}
