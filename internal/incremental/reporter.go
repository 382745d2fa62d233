package incremental

import (
	"context"
	"log/slog"
)

// Reporter emits incremental remarks. A nil Reporter is silent.
type Reporter struct {
	logger *slog.Logger
}

// NewReporter returns a reporter writing remarks to logger at Info level.
func NewReporter(logger *slog.Logger) *Reporter {
	return &Reporter{logger: logger}
}

func (r *Reporter) report(msg string, attrs ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Log(context.Background(), slog.LevelInfo, "incremental: "+msg, attrs...)
}

func (r *Reporter) disabled(reason string) {
	r.report("Disabling incremental build", "reason", reason)
}

func (r *Reporter) queuedInitial(source, reason string) {
	r.report("Queuing (initial)", "file", source, "reason", reason)
}

func (r *Reporter) skipped(source string) {
	r.report("Skipping", "file", source)
}

func (r *Reporter) queuedDiscovered(source, because string) {
	r.report("Queuing because of dependencies discovered later", "file", source, "after", because)
}

func (r *Reporter) unreadableRecord(source string, err error) {
	r.report("Dependency record unreadable, treating file as changed", "file", source, "error", err)
}
