package backup

import "testing"

func TestBlacklistContains(t *testing.T) {
	bl := NewBlacklist([]string{"postgres", "redis", "", "postgres"})

	if got := bl.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if !bl.Contains("postgres") {
		t.Error("Contains(postgres) = false, want true")
	}
	if !bl.Contains("redis") {
		t.Error("Contains(redis) = false, want true")
	}
	if bl.Contains("Postgres") {
		t.Error("Contains(Postgres) = true, matching should be exact")
	}
	if bl.Contains("") {
		t.Error("Contains(\"\") = true, empty entries should be dropped")
	}
}

func TestBlacklistNilSafe(t *testing.T) {
	var bl *Blacklist
	if bl.Contains("anything") {
		t.Error("nil blacklist should contain nothing")
	}
	if bl.Len() != 0 {
		t.Errorf("nil blacklist Len() = %d, want 0", bl.Len())
	}

	empty := NewBlacklist(nil)
	if empty.Contains("anything") {
		t.Error("empty blacklist should contain nothing")
	}
}
