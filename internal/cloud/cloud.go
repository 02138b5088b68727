package cloud

import "context"

// Provider drives the lifecycle of the single instance hosting the
// ephemeral runner. Every operation is one request/response exchange; no
// state is kept between calls beyond what the caller threads through.
type Provider interface {
	Launch(ctx context.Context, label string, registrationToken string) (string, error)
	Resume(ctx context.Context, instanceID string) (string, error)
	Stop(ctx context.Context) error
	Terminate(ctx context.Context) error
	WaitForRunning(ctx context.Context, instanceID string) error
	WaitForStopped(ctx context.Context, instanceID string) error

	// StartRunner is best-effort: failures are logged, never returned.
	StartRunner(ctx context.Context, instanceID string)
}
