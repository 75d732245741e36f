package broker

import (
	"context"
	"errors"
	"syscall"
)

// isRetryable classifies an invocation error. Transient process-level
// failures (spawn, timeout, a reset pipe to the child) are worth another
// attempt; a non-zero exit means the backend saw the request and rejected
// it, so retrying would only repeat the failure.
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsSpawnFailure(err), IsTimeout(err):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return true
	default:
		return false
	}
}

// invokeWithRetry runs one backend invocation with up to cfg.MaxRetries
// re-attempts on retryable errors, sleeping cfg.RetryDelay between
// attempts. The worker goroutine is the sole caller, so sleeping here
// blocks the whole queue; that is intentional, the backend is down and
// letting more requests at it would not help.
func (b *Broker) invokeWithRetry(ctx context.Context, req *request, args []string) (string, string, error) {
	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			b.sleep(b.cfg.RetryDelay)
			b.log.Info().Str("request_id", req.id).Int("attempt", attempt+1).
				Msg("retrying backend invocation")
		}
		stdout, _, err := b.runner.run(ctx, args, req.message)
		if err == nil {
			return parseAndLog(b, req, stdout)
		}
		lastErr = err
		if !isRetryable(err) {
			b.log.Error().Err(err).Str("request_id", req.id).Msg("fatal backend error")
			return "", "", err
		}
		b.log.Warn().Err(err).Str("request_id", req.id).Int("attempt", attempt+1).
			Msg("retryable backend error")
	}
	return "", "", lastErr
}

func parseAndLog(b *Broker, req *request, stdout []byte) (string, string, error) {
	text, sessionID, err := parseStream(stdout, b.log)
	if err != nil {
		b.log.Error().Err(err).Str("request_id", req.id).Msg("backend stream unusable")
		return "", "", err
	}
	return text, sessionID, nil
}
