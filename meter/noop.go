package meter

import "github.com/jobtrail/governor"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ governor.Meter = (*NoopMeter)(nil)

func (NoopMeter) OnAdmission(governor.AdmissionEvent) {}
func (NoopMeter) OnResult(governor.ResultEvent)       {}
func (NoopMeter) OnQueue(governor.QueueEvent)         {}
