package prometheus

import (
	"github.com/attune-ai/attune/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// MetricsListener records gateway events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with a Bus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	switch event.Type {
	case events.EventSessionOpened:
		if data, ok := event.Data.(*events.SessionOpenedData); ok {
			RecordSessionCount(data.ActiveSessions)
		}
	case events.EventSessionClosed:
		if data, ok := event.Data.(*events.SessionClosedData); ok {
			RecordSessionCount(data.ActiveSessions)
		}
	case events.EventFrameReceived:
		if data, ok := event.Data.(*events.FrameReceivedData); ok {
			RecordFrame(string(data.FrameType))
		}
	case events.EventFrameRejected:
		if data, ok := event.Data.(*events.FrameRejectedData); ok {
			RecordFrameRejection(data.Reason)
		}
	case events.EventUtteranceFlushed:
		if data, ok := event.Data.(*events.UtteranceFlushedData); ok {
			RecordUtteranceFlush(data.Reason)
		}
	case events.EventStageCompleted:
		if data, ok := event.Data.(*events.StageData); ok {
			RecordStage(data.Stage, statusSuccess, data.Duration.Seconds())
		}
	case events.EventStageFailed:
		if data, ok := event.Data.(*events.StageData); ok {
			RecordStage(data.Stage, statusError, data.Duration.Seconds())
		}
	case events.EventTurnCompleted:
		if data, ok := event.Data.(*events.TurnData); ok {
			RecordTurn(statusSuccess, data.Duration.Seconds())
		}
	case events.EventTurnFailed:
		if data, ok := event.Data.(*events.TurnData); ok {
			RecordTurn(statusError, data.Duration.Seconds())
		}
	default:
		// Ignore events that don't have metrics
	}
}

// Listener returns an events.Listener function that can be registered with a Bus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
