package broker

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseStreamBasic(t *testing.T) {
	text, sessionID, err := parseStream([]byte(stream("sess-1", "hello")), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if text != "hello" {
		t.Fatalf("text = %q, want hello", text)
	}
	if sessionID != "sess-1" {
		t.Fatalf("sessionID = %q, want sess-1", sessionID)
	}
}

func TestParseStreamLatestAssistantWins(t *testing.T) {
	in := `{"type":"system","subtype":"init","session_id":"s"}
{"type":"assistant","message":{"content":[{"type":"text","text":"draft"}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"final answer"}]}}
{"type":"result","result":"final answer"}
`
	text, _, err := parseStream([]byte(in), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if text != "final answer" {
		t.Fatalf("text = %q, want final answer", text)
	}
}

func TestParseStreamResultFallback(t *testing.T) {
	in := `{"type":"system","subtype":"init","session_id":"s"}
{"type":"result","result":"only the result carried text"}
`
	text, _, err := parseStream([]byte(in), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if text != "only the result carried text" {
		t.Fatalf("text = %q", text)
	}
}

func TestParseStreamJoinsTextBlocks(t *testing.T) {
	in := `{"type":"assistant","message":{"content":[{"type":"text","text":"part one, "},{"type":"tool_use","text":"ignored"},{"type":"text","text":"part two"}]}}
`
	text, _, err := parseStream([]byte(in), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if text != "part one, part two" {
		t.Fatalf("text = %q", text)
	}
}

func TestParseStreamSkipsNoise(t *testing.T) {
	in := "starting up...\n" +
		`{"type":"telemetry","ms":12}` + "\n" +
		"not json at all {\n" +
		`{"type":"assistant","session_id":"s2","message":{"content":[{"type":"text","text":"ok"}]}}` + "\n"
	text, sessionID, err := parseStream([]byte(in), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if text != "ok" || sessionID != "s2" {
		t.Fatalf("got (%q, %q), want (ok, s2)", text, sessionID)
	}
}

func TestParseStreamLatestSessionIDWins(t *testing.T) {
	in := `{"type":"system","subtype":"init","session_id":"old"}
{"type":"assistant","session_id":"new","message":{"content":[{"type":"text","text":"x"}]}}
`
	_, sessionID, err := parseStream([]byte(in), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if sessionID != "new" {
		t.Fatalf("sessionID = %q, want new", sessionID)
	}
}

func TestParseStreamIsErrorDoesNotFail(t *testing.T) {
	in := `{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}
{"type":"result","result":"partial","is_error":true,"session_id":"s3"}
`
	text, sessionID, err := parseStream([]byte(in), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream should not fail on is_error: %v", err)
	}
	if text != "partial" || sessionID != "s3" {
		t.Fatalf("got (%q, %q)", text, sessionID)
	}
}

// A backend that exits cleanly without producing any text yields an empty
// response, never an error; only the exit status decides failure.
func TestParseStreamNoTextIsNotAnError(t *testing.T) {
	for _, in := range []string{"", "\n\n", `{"type":"system","subtype":"init","session_id":"s"}` + "\n"} {
		text, _, err := parseStream([]byte(in), zerolog.Nop())
		if err != nil {
			t.Fatalf("input %q: parseStream: %v", in, err)
		}
		if text != "" {
			t.Fatalf("input %q: text = %q, want empty", in, text)
		}
	}
	_, sessionID, err := parseStream([]byte(`{"type":"system","subtype":"init","session_id":"s"}`+"\n"), zerolog.Nop())
	if err != nil || sessionID != "s" {
		t.Fatalf("session id should survive a textless stream, got (%q, %v)", sessionID, err)
	}
}

// The latest assistant record overwrites earlier ones even when it carries
// no text blocks; the result record then backfills the final text.
func TestParseStreamToolOnlyAssistantOverwrites(t *testing.T) {
	in := `{"type":"assistant","message":{"content":[{"type":"text","text":"draft"}]}}
{"type":"assistant","message":{"content":[{"type":"tool_use","text":"lookup"}]}}
{"type":"result","result":"from the result record"}
`
	text, _, err := parseStream([]byte(in), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if text != "from the result record" {
		t.Fatalf("text = %q, want result fallback after textless assistant record", text)
	}
}

func TestParseStreamLongLine(t *testing.T) {
	long := strings.Repeat("a", 200_000)
	in := `{"type":"assistant","message":{"content":[{"type":"text","text":"` + long + `"}]}}` + "\n"
	text, _, err := parseStream([]byte(in), zerolog.Nop())
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if len(text) != len(long) {
		t.Fatalf("text length = %d, want %d", len(text), len(long))
	}
}
