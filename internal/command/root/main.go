package root

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mtsoltan/ec2-github-runner/internal/cloud"
	"github.com/mtsoltan/ec2-github-runner/internal/config"
	"github.com/mtsoltan/ec2-github-runner/internal/github"
)

var Cmd = &cobra.Command{
	Use:   "ec2-github-runner",
	Short: "On-demand self-hosted GitHub Actions runner on EC2",
	Long:  `Provisions, resumes and tears down a single EC2 instance hosting an ephemeral GitHub Actions runner`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Usage()
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	Cmd.PersistentFlags().String("github-token", "", "GitHub token with repo scope")
	Cmd.PersistentFlags().String("github-repository", os.Getenv("GITHUB_REPOSITORY"), "Repository as owner/name")

	Cmd.PersistentFlags().String("ec2-image-id", "", "AMI with the runner prerequisites")
	Cmd.PersistentFlags().String("ec2-instance-type", "", "EC2 instance type")
	Cmd.PersistentFlags().String("subnet-id", "", "VPC subnet for the instance")
	Cmd.PersistentFlags().String("security-group-id", "", "Security group for the instance")
	Cmd.PersistentFlags().String("iam-role-name", "", "IAM instance profile attached to the instance")
	Cmd.PersistentFlags().String("aws-resource-tags", "", "JSON array of tags applied to the instance and volumes")

	Cmd.PersistentFlags().String("ec2-instance-id", "", "Existing instance to resume (start) or tear down (stop)")
	Cmd.PersistentFlags().Bool("keep-instance", false, "Stop the instance instead of terminating it")

	Cmd.PersistentFlags().String("label", "", "Runner label (generated when launching if empty)")
	Cmd.PersistentFlags().String("runner-home-dir", "", "Directory of a pre-installed runner, skips download")
	Cmd.PersistentFlags().String("pre-runner-script", "", "Shell script sourced before the runner registers")
	Cmd.PersistentFlags().String("runner-version", config.DefaultRunnerVersion, "actions/runner release to install")
	Cmd.PersistentFlags().Int("wait-timeout-seconds", int(config.DefaultWaitTimeout.Seconds()), "Ceiling for state and registration waits")

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(Cmd.PersistentFlags()); err != nil {
		log.WithError(err).Fatal("flag binding failed")
	}
}

type Component struct {
	Config *config.Config
	Cloud  cloud.Provider
	GitHub *github.Client
}

// GetComponent resolves the configuration and opens fresh client handles
// for the two external services. Called once per command invocation.
func GetComponent(ctx context.Context) *Component {
	cfg, err := config.Load()

	if err != nil {
		log.WithError(err).Fatal("unable to load configuration")
	}

	provider, err := cloud.NewAWS(cfg)

	if err != nil {
		log.WithError(err).Fatal("unable to create AWS clients")
	}

	return &Component{
		Config: cfg,
		Cloud:  provider,
		GitHub: github.NewClient(ctx, cfg),
	}
}
