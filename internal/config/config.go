package config

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// DefaultRunnerVersion is the actions/runner release downloaded by the
	// boot script when the instance has no pre-installed runner.
	DefaultRunnerVersion = "2.313.0"

	// DefaultWaitTimeout bounds the two instance-state waiters and the
	// runner registration poll.
	DefaultWaitTimeout = 300 * time.Second
)

// Tag is a single resource tag applied to the launched instance and its
// volumes. The action input is a JSON array of these.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Config carries every static parameter for one action invocation. It is
// resolved once from viper and never mutated afterwards.
type Config struct {
	GitHubToken string

	Owner string
	Repo  string

	ImageID         string
	InstanceType    string
	SubnetID        string
	SecurityGroupID string
	IAMRoleName     string
	Tags            []Tag

	// InstanceID selects the pre-provisioned instance flow: start resumes
	// it instead of launching a fresh instance.
	InstanceID string

	// KeepInstance makes the stop mode stop the instance instead of
	// terminating it, so a later start can resume it.
	KeepInstance bool

	Label           string
	RunnerHomeDir   string
	PreRunnerScript string
	RunnerVersion   string

	WaitTimeout time.Duration
}

// Load resolves the configuration from viper (flags and environment).
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:     viper.GetString("github-token"),
		ImageID:         viper.GetString("ec2-image-id"),
		InstanceType:    viper.GetString("ec2-instance-type"),
		SubnetID:        viper.GetString("subnet-id"),
		SecurityGroupID: viper.GetString("security-group-id"),
		IAMRoleName:     viper.GetString("iam-role-name"),
		InstanceID:      viper.GetString("ec2-instance-id"),
		KeepInstance:    viper.GetBool("keep-instance"),
		Label:           viper.GetString("label"),
		RunnerHomeDir:   viper.GetString("runner-home-dir"),
		PreRunnerScript: viper.GetString("pre-runner-script"),
		RunnerVersion:   viper.GetString("runner-version"),
		WaitTimeout:     time.Duration(viper.GetInt("wait-timeout-seconds")) * time.Second,
	}

	if cfg.RunnerVersion == "" {
		cfg.RunnerVersion = DefaultRunnerVersion
	}

	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}

	repository := viper.GetString("github-repository")

	if repository != "" {
		parts := strings.SplitN(repository, "/", 2)

		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("invalid repository '%s', expected owner/name", repository)
		}

		cfg.Owner = parts[0]
		cfg.Repo = parts[1]
	}

	if rawTags := viper.GetString("aws-resource-tags"); rawTags != "" {
		if err := json.Unmarshal([]byte(rawTags), &cfg.Tags); err != nil {
			return nil, errors.Wrap(err, "unable to parse aws-resource-tags")
		}
	}

	return cfg, nil
}

// ValidateStart checks the fields required by the start mode.
func (c *Config) ValidateStart() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.InstanceID != "" {
		// Resuming a pre-provisioned instance: the runner is already
		// installed there under a known label.
		if c.Label == "" {
			return errors.New("label is required when resuming an existing instance")
		}
		return nil
	}

	if c.ImageID == "" {
		return errors.New("ec2-image-id is required to launch a new instance")
	}

	if c.InstanceType == "" {
		return errors.New("ec2-instance-type is required to launch a new instance")
	}

	if c.SubnetID == "" {
		return errors.New("subnet-id is required to launch a new instance")
	}

	if c.SecurityGroupID == "" {
		return errors.New("security-group-id is required to launch a new instance")
	}

	return nil
}

// ValidateStop checks the fields required by the stop mode.
func (c *Config) ValidateStop() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.InstanceID == "" {
		return errors.New("ec2-instance-id is required to stop or terminate an instance")
	}

	if c.Label == "" {
		return errors.New("label is required to deregister the runner")
	}

	return nil
}

func (c *Config) validateCommon() error {
	if c.GitHubToken == "" {
		return errors.New("github-token is required")
	}

	if c.Owner == "" || c.Repo == "" {
		return errors.New("github-repository is required, expected owner/name")
	}

	return nil
}

// RegistrationURL is the repository URL the runner registers against.
func (c *Config) RegistrationURL() string {
	return "https://github.com/" + c.Owner + "/" + c.Repo
}
