package broker

import (
	"bufio"
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"
)

// streamRecord is the subset of backend NDJSON fields the parser folds over.
// Unknown fields are ignored by encoding/json, so record shapes the backend
// adds later degrade to noise instead of breaking the parse.
type streamRecord struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Message   *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

// parseStream folds the backend's NDJSON stdout into the final response
// text and session id. Later assistant records overwrite earlier ones, so
// a stream of incremental turns yields the last complete message; the
// terminal result record's text is used only when no assistant record
// carried any. Lines that are not JSON objects, and records of unknown
// type, are skipped. An is_error result is logged and otherwise treated
// like any other: the process exit code, not this flag, decides failure.
// A stream with no text at all yields an empty response, not an error,
// for the same reason.
func parseStream(stdout []byte, log zerolog.Logger) (text, sessionID string, err error) {
	var resultText string

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec streamRecord
		if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil {
			log.Debug().Str("line", truncate(string(line), 120)).Msg("skipping non-JSON stream line")
			continue
		}
		if rec.SessionID != "" {
			sessionID = rec.SessionID
		}
		switch rec.Type {
		case "assistant":
			if rec.Message == nil {
				continue
			}
			var buf bytes.Buffer
			for _, block := range rec.Message.Content {
				if block.Type == "text" {
					buf.WriteString(block.Text)
				}
			}
			// Latest assistant record wins, even one with no text
			// blocks; the result record below backfills that case.
			text = buf.String()
		case "result":
			if rec.IsError {
				log.Warn().Str("session_id", rec.SessionID).Str("result", truncate(rec.Result, 200)).
					Msg("backend reported is_error in result record")
			}
			if rec.Result != "" {
				resultText = rec.Result
			}
		}
	}
	if scanErr := sc.Err(); scanErr != nil {
		return "", "", scanErr
	}

	if text == "" {
		text = resultText
	}
	if text == "" {
		log.Warn().Str("session_id", sessionID).Msg("backend stream contained no response text")
	}
	return text, sessionID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
