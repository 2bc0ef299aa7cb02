package ledger

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestTokenCountCoercion(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int64
	}{
		{"number", `{"tokens_used": 42}`, 42},
		{"numeric string", `{"tokens_used": "42"}`, 42},
		{"non-numeric string", `{"tokens_used": "abc"}`, 0},
		{"null", `{"tokens_used": null}`, 0},
		{"absent", `{}`, 0},
		{"object", `{"tokens_used": {"n": 1}}`, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rec Record
			if err := json.Unmarshal([]byte(tc.body), &rec); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if int64(rec.TokensUsed) != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.TokensUsed)
			}
		})
	}
}

func TestTokensExcludesThreadRecords(t *testing.T) {
	now := time.Now().UTC()

	msg := NewMessageRecord("u1", "t1", "hello", 500, now)
	if msg.Tokens() != 500 {
		t.Fatalf("expected 500, got %d", msg.Tokens())
	}

	ref := NewThreadRecord("u1", "t1", "asst_1", now)
	ref.TokensUsed = 999
	if ref.Tokens() != 0 {
		t.Fatalf("thread record must not contribute tokens, got %d", ref.Tokens())
	}
}

func TestNewMessageRecordClampsNegative(t *testing.T) {
	rec := NewMessageRecord("u1", "t1", "hi", -7, time.Now().UTC())
	if rec.Tokens() != 0 {
		t.Fatalf("expected 0 for negative input, got %d", rec.Tokens())
	}
}

func TestNewRecordIDsDiffer(t *testing.T) {
	a := NewMessageRecord("u1", "t1", "x", 1, time.Now())
	b := NewMessageRecord("u1", "t1", "x", 1, time.Now())
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
}
