package httpapi

import (
	"log"
	"time"

	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func logChatStart(requestID, topic string) {
	if zlog == nil {
		log.Printf("chat start request_id=%s topic=%s", requestID, topic)
		return
	}
	z := zlog.Info().Str("topic", topic)
	if requestID != "" {
		z = z.Str("request_id", requestID)
	}
	z.Msg("chat start")
}

func logChatEnd(requestID string, status int, dur time.Duration, err error) {
	if zlog == nil {
		if err != nil {
			log.Printf("chat end request_id=%s status=%d dur=%s err=%v", requestID, status, dur, err)
		} else {
			log.Printf("chat end request_id=%s status=%d dur=%s", requestID, status, dur)
		}
		return
	}
	z := zlog.Info().Int("status", status).Dur("dur", dur)
	if requestID != "" {
		z = z.Str("request_id", requestID)
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg("chat end")
}
