package governor

import "time"

// Meter observes governor events for monitoring/logging.
type Meter interface {
	// OnAdmission is called for every admission decision.
	OnAdmission(event AdmissionEvent)

	// OnResult is called after every execution attempt of a work callback.
	OnResult(event ResultEvent)

	// OnQueue is called on deferred-queue transitions.
	OnQueue(event QueueEvent)
}

// AdmissionEvent describes an admission decision.
type AdmissionEvent struct {
	Model           string
	Allowed         bool
	Wait            time.Duration
	Reason          string
	EstimatedTokens int64
	FromQueue       bool
}

// ResultEvent describes the outcome of a single execution attempt.
type ResultEvent struct {
	Model    string
	Success  bool
	Attempt  int
	Duration time.Duration
	Err      error
}

// Queue event kinds.
const (
	QueueEnqueued  = "enqueued"
	QueueRequeued  = "requeued"
	QueueCompleted = "completed"
	QueueDropped   = "dropped"
)

// QueueEvent describes a deferred-queue transition.
type QueueEvent struct {
	Kind     string
	ID       string
	Model    string
	Priority int
	Retries  int
	Depth    int
	Err      error
}

// noopMeter is the default meter; it does nothing.
type noopMeter struct{}

func (noopMeter) OnAdmission(AdmissionEvent) {}
func (noopMeter) OnResult(ResultEvent)       {}
func (noopMeter) OnQueue(QueueEvent)         {}
