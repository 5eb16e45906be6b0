package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/grounded-qa/internal/infrastructure/resilience"
)

// classifyNATSError decides whether a publish is worth retrying. Lost
// connections recover on reconnect; malformed subjects and oversized
// payloads never will.
func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionDraining) ||
		errors.Is(err, nats.ErrSlowConsumer) {
		return resilience.Transient
	}
	if errors.Is(err, nats.ErrBadSubject) ||
		errors.Is(err, nats.ErrMaxPayload) ||
		errors.Is(err, nats.ErrInvalidMsg) {
		return resilience.Ignored
	}
	return resilience.Permanent
}
