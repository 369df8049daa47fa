package logger

import "testing"

func TestSanitizeKVsRedactsAndHashes(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"token", "abc",
		"user_id", int64(42),
		"room_id", int64(7),
		"note", "eyJhbGciOiJIUzI1NiJ9.eyJ1c2VyX2lkIjo0Mn0.sig",
		"dangling",
	})
	if len(out) != 9 {
		t.Fatalf("len: want=9 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("token: want=[REDACTED] got=%v", out[1])
	}
	hashed, ok := out[3].(string)
	if !ok || len(hashed) != len("hash:")+12 {
		t.Fatalf("user_id: want hash:<12 hex> got=%v", out[3])
	}
	if out[5] != int64(7) {
		t.Fatalf("room_id should pass through: got=%v", out[5])
	}
	if out[7] != "[REDACTED]" {
		t.Fatalf("jwt-looking value: want=[REDACTED] got=%v", out[7])
	}
	if out[8] != "dangling" {
		t.Fatalf("dangling key: want=dangling got=%v", out[8])
	}
}

func TestHashValueIsStable(t *testing.T) {
	a := hashValue(int64(99))
	b := hashValue("99")
	if a != b {
		t.Fatalf("hash should depend on rendered value: a=%q b=%q", a, b)
	}
}

func TestNewTestModeIsNop(t *testing.T) {
	log, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.With("service", "x").Info("quiet", "k", "v")
	log.Sync()
}
