package cloud

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mtsoltan/ec2-github-runner/internal/config"
)

// waiterDelay is the polling cadence handed to the SDK waiters. The
// number of attempts is derived from the configured wait timeout.
const waiterDelay = 15 * time.Second

type awsProvider struct {
	compute  ec2iface.EC2API
	commands ssmiface.SSMAPI
	cfg      *config.Config
}

// NewAWS creates a Provider over EC2 and SSM. Credentials come from the
// SDK's ambient resolution chain (environment, shared config, instance
// profile); nothing is configured here.
func NewAWS(cfg *config.Config) (Provider, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})

	if err != nil {
		return nil, errors.Wrap(err, "aws session")
	}

	return &awsProvider{compute: ec2.New(sess), commands: ssm.New(sess), cfg: cfg}, nil
}

func (p *awsProvider) Launch(ctx context.Context, label string, registrationToken string) (string, error) {
	script := BootScript(p.cfg, label, registrationToken)
	userData := base64.StdEncoding.EncodeToString([]byte(script))

	input := &ec2.RunInstancesInput{
		ImageId:          aws.String(p.cfg.ImageID),
		InstanceType:     aws.String(p.cfg.InstanceType),
		MinCount:         aws.Int64(1),
		MaxCount:         aws.Int64(1),
		SubnetId:         aws.String(p.cfg.SubnetID),
		SecurityGroupIds: []*string{aws.String(p.cfg.SecurityGroupID)},
		UserData:         aws.String(userData),
		ClientToken:      aws.String(uuid.NewString()),
	}

	if p.cfg.IAMRoleName != "" {
		input.IamInstanceProfile = &ec2.IamInstanceProfileSpecification{
			Name: aws.String(p.cfg.IAMRoleName),
		}
	}

	if len(p.cfg.Tags) > 0 {
		tags := make([]*ec2.Tag, len(p.cfg.Tags))

		for i, tag := range p.cfg.Tags {
			tags[i] = &ec2.Tag{Key: aws.String(tag.Key), Value: aws.String(tag.Value)}
		}

		input.TagSpecifications = []*ec2.TagSpecification{
			{ResourceType: aws.String(ec2.ResourceTypeInstance), Tags: tags},
			{ResourceType: aws.String(ec2.ResourceTypeVolume), Tags: tags},
		}
	}

	result, err := p.compute.RunInstancesWithContext(ctx, input)

	if err != nil {
		log.WithError(err).Error("unable to launch instance")
		return "", errors.Wrap(err, "launch instance")
	}

	if len(result.Instances) == 0 {
		log.Error("launch request returned an empty reservation")
		return "", errors.New("launch instance: empty reservation")
	}

	instanceID := aws.StringValue(result.Instances[0].InstanceId)

	log.WithFields(log.Fields{
		"instance": instanceID,
		"label":    label,
	}).Info("instance launched")

	return instanceID, nil
}

func (p *awsProvider) Resume(ctx context.Context, instanceID string) (string, error) {
	_, err := p.compute.StartInstancesWithContext(ctx, &ec2.StartInstancesInput{
		InstanceIds: []*string{aws.String(instanceID)},
	})

	if err != nil {
		log.WithError(err).Errorf("unable to resume instance '%s'", instanceID)
		return "", errors.Wrapf(err, "resume instance '%s'", instanceID)
	}

	log.Infof("instance '%s' resumed", instanceID)

	return instanceID, nil
}

func (p *awsProvider) Stop(ctx context.Context) error {
	_, err := p.compute.StopInstancesWithContext(ctx, &ec2.StopInstancesInput{
		InstanceIds: []*string{aws.String(p.cfg.InstanceID)},
	})

	if err != nil {
		log.WithError(err).Errorf("unable to stop instance '%s'", p.cfg.InstanceID)
		return errors.Wrapf(err, "stop instance '%s'", p.cfg.InstanceID)
	}

	log.Infof("instance '%s' stopping", p.cfg.InstanceID)

	return nil
}

func (p *awsProvider) Terminate(ctx context.Context) error {
	_, err := p.compute.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []*string{aws.String(p.cfg.InstanceID)},
	})

	if err != nil {
		log.WithError(err).Errorf("unable to terminate instance '%s'", p.cfg.InstanceID)
		return errors.Wrapf(err, "terminate instance '%s'", p.cfg.InstanceID)
	}

	log.Infof("instance '%s' terminating", p.cfg.InstanceID)

	return nil
}

func (p *awsProvider) WaitForRunning(ctx context.Context, instanceID string) error {
	err := p.compute.WaitUntilInstanceRunningWithContext(ctx, describeByID(instanceID), p.waiterOptions()...)

	if err != nil {
		log.WithError(err).Errorf("instance '%s' did not reach running state", instanceID)
		return errors.Wrapf(err, "wait for instance '%s' running", instanceID)
	}

	log.Infof("instance '%s' is running", instanceID)

	return nil
}

func (p *awsProvider) WaitForStopped(ctx context.Context, instanceID string) error {
	err := p.compute.WaitUntilInstanceStoppedWithContext(ctx, describeByID(instanceID), p.waiterOptions()...)

	if err != nil {
		log.WithError(err).Errorf("instance '%s' did not reach stopped state", instanceID)
		return errors.Wrapf(err, "wait for instance '%s' stopped", instanceID)
	}

	log.Infof("instance '%s' is stopped", instanceID)

	return nil
}

// StartRunner asks SSM to start the pre-installed runner process on the
// instance. The submission is fire-and-forget and best-effort by policy:
// a failure is logged and swallowed, the caller gets no signal.
func (p *awsProvider) StartRunner(ctx context.Context, instanceID string) {
	home := p.cfg.RunnerHomeDir

	if home == "" {
		home = "actions-runner"
	}

	_, err := p.commands.SendCommandWithContext(ctx, &ssm.SendCommandInput{
		DocumentName: aws.String("AWS-RunShellScript"),
		InstanceIds:  []*string{aws.String(instanceID)},
		Comment:      aws.String("start GitHub Actions runner"),
		Parameters: map[string][]*string{
			"commands": {
				aws.String("cd " + home),
				aws.String("./run.sh"),
			},
		},
	})

	if err != nil {
		log.WithError(err).Errorf("unable to start runner on instance '%s'", instanceID)
		return
	}

	log.Infof("runner start command sent to instance '%s'", instanceID)
}

func (p *awsProvider) waiterOptions() []request.WaiterOption {
	attempts := int(p.cfg.WaitTimeout / waiterDelay)

	if attempts < 1 {
		attempts = 1
	}

	return []request.WaiterOption{
		request.WithWaiterDelay(request.ConstantWaiterDelay(waiterDelay)),
		request.WithWaiterMaxAttempts(attempts),
	}
}

func describeByID(instanceID string) *ec2.DescribeInstancesInput {
	return &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("instance-id"),
				Values: []*string{aws.String(instanceID)},
			},
		},
	}
}
