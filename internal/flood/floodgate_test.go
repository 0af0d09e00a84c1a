package flood

import (
	"testing"
)

func TestAllowWithinLimit(t *testing.T) {
	fg := New(3)
	defer fg.Stop()

	for i := 0; i < 3; i++ {
		if !fg.Allow("regenerate", "u1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if fg.Allow("regenerate", "u1") {
		t.Error("fourth request within the window should be blocked")
	}
}

func TestAllowIsPerUserAndOperation(t *testing.T) {
	fg := New(1)
	defer fg.Stop()

	if !fg.Allow("regenerate", "u1") {
		t.Fatal("first request for u1 should be allowed")
	}
	if fg.Allow("regenerate", "u1") {
		t.Error("second request for u1 should be blocked")
	}
	if !fg.Allow("regenerate", "u2") {
		t.Error("u2 should have an independent window")
	}
	if !fg.Allow("join", "u1") {
		t.Error("a different operation should have an independent window")
	}
}

func TestGetStats(t *testing.T) {
	fg := New(5)
	defer fg.Stop()

	fg.Allow("regenerate", "u1")
	fg.Allow("regenerate", "u2")

	stats := fg.GetStats()
	if stats.ActiveUsers != 2 {
		t.Errorf("ActiveUsers = %d, want 2", stats.ActiveUsers)
	}
	if stats.LimitPerMinute != 5 || stats.WindowSeconds != 60 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
