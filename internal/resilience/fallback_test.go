package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gumelab/gume/pkg/provider/reply"
	replymock "github.com/gumelab/gume/pkg/provider/reply/mock"
	"github.com/gumelab/gume/pkg/provider/tts"
	ttsmock "github.com/gumelab/gume/pkg/provider/tts/mock"
)

func TestFallbackGroup_PrimarySucceeds(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("backup", "backup")

	var used string
	err := fg.Execute(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != "primary" {
		t.Errorf("used = %q, want primary", used)
	}
}

func TestFallbackGroup_FailsOverToBackup(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("backup", "backup")

	var attempts []string
	err := fg.Execute(func(v string) error {
		attempts = append(attempts, v)
		if v == "primary" {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 2 || attempts[1] != "backup" {
		t.Errorf("attempts = %v, want [primary backup]", attempts)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("backup", "backup")

	err := fg.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("error = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fg.AddFallback("backup", "backup")

	// Trip the primary's breaker.
	_ = fg.Execute(func(v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	})

	var attempts []string
	err := fg.Execute(func(v string) error {
		attempts = append(attempts, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != "backup" {
		t.Errorf("attempts = %v, want the primary skipped entirely", attempts)
	}
}

func TestTTSFallback_FailsOverToDummy(t *testing.T) {
	broken := &ttsmock.Provider{
		SynthesizeErr: &tts.ProviderError{Provider: "elevenlabs", Err: errTest},
	}
	healthy := &ttsmock.Provider{
		SynthesizeResult: &tts.Result{AudioURL: "https://backup.test/a.mp3"},
	}

	f := NewTTSFallback(broken, "elevenlabs", FallbackConfig{})
	f.AddFallback("dummy", healthy)

	res, err := f.Synthesize(context.Background(), "你好", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AudioURL != "https://backup.test/a.mp3" {
		t.Errorf("audio url = %q, want the backup's", res.AudioURL)
	}
	if len(broken.SynthesizeCalls) != 1 {
		t.Errorf("primary calls = %d, want 1", len(broken.SynthesizeCalls))
	}
}

func TestTTSFallback_AllBackendsDown(t *testing.T) {
	broken := &ttsmock.Provider{
		SynthesizeErr: &tts.ProviderError{Provider: "elevenlabs", Err: errTest},
	}
	f := NewTTSFallback(broken, "elevenlabs", FallbackConfig{})

	_, err := f.Synthesize(context.Background(), "hello", nil)
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("error = %v, want ErrAllFailed", err)
	}
}

func TestReplyFallback_EchoKeepsSessionsResponsive(t *testing.T) {
	broken := &replymock.Generator{ReplyErr: errTest}

	f := NewReplyFallback(broken, "openai", FallbackConfig{})
	f.AddFallback("echo", reply.Echo{})

	got, err := f.Reply(context.Background(), reply.Request{RoleName: "李泽言", Text: "在吗"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "在吗" {
		t.Errorf("reply = %q, want the echoed input", got)
	}
}
