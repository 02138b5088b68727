package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// WatchInterrupt returns a context that is cancelled on SIGINT/SIGTERM,
// giving the running command a chance to finish its current request. If
// the process is still alive after the grace delay it exits immediately.
func WatchInterrupt(ctx context.Context, grace time.Duration) context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		<-sigs
		log.Warnf("interrupt received, shutting down within %s...", grace)
		cancel()
		<-time.After(grace)
		log.Warn("grace period expired, exiting now")
		os.Exit(1)
	}()

	return ctx
}
