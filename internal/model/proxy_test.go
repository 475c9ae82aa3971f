package model

import (
	"net/http"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
		replays bool
		records bool
	}{
		{"", ModeBoth, false, true, true},
		{"both", ModeBoth, false, true, true},
		{"replay-only", ModeReplayOnly, false, true, false},
		{"record-only", ModeRecordOnly, false, false, true},
		{"replay", "", true, false, false},
		{"BOTH", "", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got.Replays() != tt.replays {
				t.Errorf("%q.Replays() = %v, want %v", got, got.Replays(), tt.replays)
			}
			if got.Records() != tt.records {
				t.Errorf("%q.Records() = %v, want %v", got, got.Records(), tt.records)
			}
		})
	}
}

func TestRemoveHopByHop(t *testing.T) {
	h := http.Header{
		"Connection":          {"keep-alive, X-Session-Hint"},
		"Keep-Alive":          {"timeout=5"},
		"Proxy-Authorization": {"Basic abc"},
		"Te":                  {"trailers"},
		"Upgrade":             {"websocket"},
		"X-Session-Hint":      {"1"},
		"Accept":              {"application/json"},
		"Authorization":       {"Bearer t"},
	}

	RemoveHopByHop(h)

	for _, gone := range []string{"Connection", "Keep-Alive", "Proxy-Authorization", "TE", "Upgrade", "X-Session-Hint"} {
		if v := h.Get(gone); v != "" {
			t.Errorf("%s = %q, want removed", gone, v)
		}
	}
	for _, kept := range []string{"Accept", "Authorization"} {
		if h.Get(kept) == "" {
			t.Errorf("%s was removed, want kept", kept)
		}
	}
}
