package recon

import (
	"os"

	"github.com/go-kit/log"
	"github.com/google/uuid"
)

// NewLogger returns the package's default structured logger: logfmt to
// stdout, tagged with a fresh run id so log lines from concurrent
// minimizer workers or separate process runs can be told apart.
func NewLogger() log.Logger {
	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	return log.With(base, "run", uuid.NewString())
}

// scoped returns logger with a "component" field set.
func scoped(logger log.Logger, component string) log.Logger {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return log.With(logger, "component", component)
}
