package github

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	gh "github.com/google/go-github/v50/github"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/mtsoltan/ec2-github-runner/internal/config"
)

// registrationPollDelay is the fixed delay between runner-list polls while
// waiting for the freshly booted runner to come online.
const registrationPollDelay = 10 * time.Second

// Client wraps the repository-scoped GitHub API calls the action needs:
// issuing a registration token, watching for the runner to register, and
// deregistering it on teardown.
type Client struct {
	api         *gh.Client
	owner       string
	repo        string
	waitTimeout time.Duration
	pollDelay   time.Duration
}

func NewClient(ctx context.Context, cfg *config.Config) *Client {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})

	return &Client{
		api:         gh.NewClient(oauth2.NewClient(ctx, source)),
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		waitTimeout: cfg.WaitTimeout,
		pollDelay:   registrationPollDelay,
	}
}

// GetRegistrationToken issues a short-lived runner registration token for
// the repository.
func (c *Client) GetRegistrationToken(ctx context.Context) (string, error) {
	token, _, err := c.api.Actions.CreateRegistrationToken(ctx, c.owner, c.repo)

	if err != nil {
		log.WithError(err).Error("unable to get runner registration token")
		return "", errors.Wrap(err, "get registration token")
	}

	return token.GetToken(), nil
}

// WaitForRunnerRegistered polls the repository runner list until a runner
// carrying the label reports online, or the wait timeout elapses.
func (c *Client) WaitForRunnerRegistered(ctx context.Context, label string) error {
	attempts := uint(c.waitTimeout / c.pollDelay)

	if attempts < 1 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}

			runner, err := c.findRunner(ctx, label)

			if err != nil {
				return err
			}

			if runner == nil {
				return errors.Errorf("runner with label '%s' not registered yet", label)
			}

			if runner.GetStatus() != "online" {
				return errors.Errorf("runner with label '%s' is %s", label, runner.GetStatus())
			}

			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(c.pollDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Debugf("waiting for runner registration (attempt %d)", n+1)
		}),
	)

	if err != nil {
		log.WithError(err).Errorf("runner with label '%s' never came online", label)
		return errors.Wrap(err, "wait for runner registration")
	}

	log.Infof("runner with label '%s' is online", label)

	return nil
}

// RemoveRunner deregisters the runner carrying the label. A runner that is
// already gone is not an error.
func (c *Client) RemoveRunner(ctx context.Context, label string) error {
	runner, err := c.findRunner(ctx, label)

	if err != nil {
		log.WithError(err).Error("unable to look up runner for removal")
		return errors.Wrap(err, "find runner")
	}

	if runner == nil {
		log.Infof("no runner with label '%s' registered, nothing to remove", label)
		return nil
	}

	if _, err = c.api.Actions.RemoveRunner(ctx, c.owner, c.repo, runner.GetID()); err != nil {
		log.WithError(err).Errorf("unable to remove runner '%s'", runner.GetName())
		return errors.Wrapf(err, "remove runner '%s'", runner.GetName())
	}

	log.Infof("runner '%s' removed", runner.GetName())

	return nil
}

func (c *Client) findRunner(ctx context.Context, label string) (*gh.Runner, error) {
	opts := &gh.ListOptions{PerPage: 100}

	for {
		runners, resp, err := c.api.Actions.ListRunners(ctx, c.owner, c.repo, opts)

		if err != nil {
			return nil, errors.Wrap(err, "list runners")
		}

		for _, runner := range runners.Runners {
			for _, l := range runner.Labels {
				if l.GetName() == label {
					return runner, nil
				}
			}
		}

		if resp.NextPage == 0 {
			return nil, nil
		}

		opts.Page = resp.NextPage
	}
}
