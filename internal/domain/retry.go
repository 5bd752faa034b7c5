package domain

// ErrorKind classifies a handler failure for the retry decision. Kinds, not
// types: adapters map their concrete errors onto these.
type ErrorKind int

const (
	// KindTransient covers network flaps, converter timeouts, and
	// object-store 5xx responses.
	KindTransient ErrorKind = iota
	// KindBadInput covers missing items/objects and deterministic converter
	// rejections. Retried once in case of races, then surfaced as failed.
	KindBadInput
	// KindPoison covers parse failures and schema mismatches. Never retried;
	// the consume loop routes these to the DLQ.
	KindPoison
	// KindFatal covers startup-level faults (topology mismatch, tracker
	// backend unreachable). The process exits non-zero.
	KindFatal
)

// RetryDecision is the outcome of DecideRetry.
type RetryDecision int

const (
	// RetryPublish: republish the message with a bumped envelope.
	RetryPublish RetryDecision = iota
	// PublishFailed: emit the corresponding …Failed event with canRetry=false.
	PublishFailed
	// RejectToDLQ: nack without requeue so the DLX collects the message.
	RejectToDLQ
)

// DecideRetry is the single retry policy for every worker. Backoff is
// broker-level only; the decision is pure so it can be tested exhaustively.
func DecideRetry(retryCount, maxRetries int, kind ErrorKind) RetryDecision {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	switch kind {
	case KindPoison, KindFatal:
		return RejectToDLQ
	case KindBadInput:
		// One republish absorbs create/analyze races; after that the input
		// is genuinely bad.
		if retryCount < 1 {
			return RetryPublish
		}
		return PublishFailed
	default:
		if retryCount < maxRetries {
			return RetryPublish
		}
		return PublishFailed
	}
}
