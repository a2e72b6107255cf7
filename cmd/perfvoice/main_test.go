package main

import (
	"strings"
	"testing"
	"time"
)

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://voice.example.org/base/", "abc 123")
	if err != nil {
		t.Fatalf("wsURLForSession() error = %v", err)
	}
	want := "wss://voice.example.org/base/v1/voice/session/ws?session_id=abc+123"
	if got != want {
		t.Fatalf("wsURLForSession() = %q, want %q", got, want)
	}

	if _, err := wsURLForSession("ftp://voice.example.org", "x"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if _, err := wsURLForSession("http://", "x"); err == nil {
		t.Fatalf("expected error for missing host")
	}
}

func TestParseTexts(t *testing.T) {
	got, err := parseTexts("")
	if err != nil {
		t.Fatalf("parseTexts() error = %v", err)
	}
	if len(got) != len(defaultUtterances) {
		t.Fatalf("len(parseTexts(\"\")) = %d, want %d", len(got), len(defaultUtterances))
	}

	got, err = parseTexts(" shelter tonight | | food bank ")
	if err != nil {
		t.Fatalf("parseTexts() error = %v", err)
	}
	if strings.Join(got, ",") != "shelter tonight,food bank" {
		t.Fatalf("parseTexts() = %q", got)
	}

	if _, err := parseTexts(" | "); err == nil {
		t.Fatalf("expected error for blank utterances")
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize(nil); got != "n=0" {
		t.Fatalf("summarize(nil) = %q", got)
	}

	samples := make([]time.Duration, 0, 20)
	for i := 20; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*100*time.Millisecond)
	}
	got := summarize(samples)
	want := "n=20 p50=1s p95=1.9s max=2s"
	if got != want {
		t.Fatalf("summarize() = %q, want %q", got, want)
	}
	if samples[0] != 2*time.Second {
		t.Fatalf("summarize mutated its input")
	}
}
