package dispatcher

import "github.com/nimasrn/voice-broadcast/internal/model"

// ShouldRetry decides whether a recipient gets another attempt after the
// given terminal outcome. attempts is the number already made, so a
// recipient is dialed at most MaxRetries+1 times.
func ShouldRetry(status model.CallStatus, attempts int, config model.DispatchConfig) bool {
	if !config.RetryFailedCalls {
		return false
	}
	if status.IsSuccess() {
		return false
	}
	return attempts < config.MaxRetries+1
}
