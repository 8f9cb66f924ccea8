package meter

import (
	"log/slog"

	"github.com/jobtrail/governor"
)

// LogMeter logs governor events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ governor.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAdmission(e governor.AdmissionEvent) {
	if e.Allowed {
		m.Logger.Debug("admitted",
			"model", e.Model,
			"estimated_tokens", e.EstimatedTokens,
			"from_queue", e.FromQueue,
		)
		return
	}
	m.Logger.Info("denied",
		"model", e.Model,
		"reason", e.Reason,
		"wait_ms", e.Wait.Milliseconds(),
		"from_queue", e.FromQueue,
	)
}

func (m *LogMeter) OnResult(e governor.ResultEvent) {
	if e.Success {
		m.Logger.Info("call succeeded",
			"model", e.Model,
			"attempt", e.Attempt,
			"duration_ms", e.Duration.Milliseconds(),
		)
	} else {
		m.Logger.Warn("call failed",
			"model", e.Model,
			"attempt", e.Attempt,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
	}
}

func (m *LogMeter) OnQueue(e governor.QueueEvent) {
	m.Logger.Info("queue "+e.Kind,
		"id", e.ID,
		"model", e.Model,
		"priority", e.Priority,
		"retries", e.Retries,
		"depth", e.Depth,
	)
}
