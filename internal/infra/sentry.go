package infra

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures error reporting. It returns a flush function that is
// a no-op when dsn is empty.
func InitSentry(dsn, appEnv string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      appEnv,
		AttachStacktrace: true,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}
