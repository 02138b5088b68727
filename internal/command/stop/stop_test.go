package stop

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtsoltan/ec2-github-runner/internal/config"
)

type fakeProvider struct {
	stopped    int
	terminated int
	waitedFor  []string

	stopErr      error
	terminateErr error
	waitErr      error
}

func (f *fakeProvider) Launch(context.Context, string, string) (string, error) { return "", nil }
func (f *fakeProvider) Resume(context.Context, string) (string, error)         { return "", nil }

func (f *fakeProvider) Stop(context.Context) error {
	f.stopped++
	return f.stopErr
}

func (f *fakeProvider) Terminate(context.Context) error {
	f.terminated++
	return f.terminateErr
}

func (f *fakeProvider) WaitForRunning(context.Context, string) error { return nil }

func (f *fakeProvider) WaitForStopped(_ context.Context, id string) error {
	f.waitedFor = append(f.waitedFor, id)
	return f.waitErr
}

func (f *fakeProvider) StartRunner(context.Context, string) {}

func TestTeardown_Terminate(t *testing.T) {
	provider := &fakeProvider{}
	cfg := &config.Config{InstanceID: "i-static"}

	require.NoError(t, teardown(context.Background(), cfg, provider))

	assert.Equal(t, 1, provider.terminated)
	assert.Zero(t, provider.stopped)
	assert.Empty(t, provider.waitedFor)
}

func TestTeardown_KeepInstanceStops(t *testing.T) {
	provider := &fakeProvider{}
	cfg := &config.Config{InstanceID: "i-static", KeepInstance: true}

	require.NoError(t, teardown(context.Background(), cfg, provider))

	assert.Equal(t, 1, provider.stopped)
	assert.Zero(t, provider.terminated)
	assert.Equal(t, []string{"i-static"}, provider.waitedFor)
}

func TestTeardown_StopError(t *testing.T) {
	provider := &fakeProvider{stopErr: fmt.Errorf("unauthorized")}
	cfg := &config.Config{InstanceID: "i-static", KeepInstance: true}

	assert.Error(t, teardown(context.Background(), cfg, provider))
	assert.Empty(t, provider.waitedFor, "must not wait when the stop request failed")
}

func TestTeardown_WaitError(t *testing.T) {
	provider := &fakeProvider{waitErr: fmt.Errorf("still running")}
	cfg := &config.Config{InstanceID: "i-static", KeepInstance: true}

	assert.Error(t, teardown(context.Background(), cfg, provider))
}

func TestTeardown_TerminateError(t *testing.T) {
	provider := &fakeProvider{terminateErr: fmt.Errorf("unauthorized")}
	cfg := &config.Config{InstanceID: "i-static"}

	assert.Error(t, teardown(context.Background(), cfg, provider))
}

type fakeRemover struct {
	removed []string
	err     error
}

func (f *fakeRemover) RemoveRunner(_ context.Context, label string) error {
	f.removed = append(f.removed, label)
	return f.err
}

func TestDeregister_AfterTerminate(t *testing.T) {
	remover := &fakeRemover{}
	cfg := &config.Config{InstanceID: "i-static", Label: "my-label"}

	deregister(context.Background(), cfg, remover)

	assert.Equal(t, []string{"my-label"}, remover.removed)
}

// A kept instance resumes with the registration it already holds, so the
// stop must leave the runner registered.
func TestDeregister_KeepInstanceLeavesRunnerRegistered(t *testing.T) {
	remover := &fakeRemover{}
	cfg := &config.Config{InstanceID: "i-static", Label: "my-label", KeepInstance: true}

	deregister(context.Background(), cfg, remover)

	assert.Empty(t, remover.removed)
}

// Removal failure after the instance is gone must not abort the step.
func TestDeregister_FailureIsSwallowed(t *testing.T) {
	remover := &fakeRemover{err: fmt.Errorf("api unavailable")}
	cfg := &config.Config{InstanceID: "i-static", Label: "my-label"}

	assert.NotPanics(t, func() {
		deregister(context.Background(), cfg, remover)
	})
	assert.Equal(t, []string{"my-label"}, remover.removed)
}
