package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestOpenRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	r, err := OpenRedis(mr.Addr(), 0, time.Second)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	defer r.Close()
	if err := r.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestOpenRedisUnreachable(t *testing.T) {
	if _, err := OpenRedis("127.0.0.1:1", 0, 100*time.Millisecond); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestOpenRedisDefaultsPingTimeout(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	// Zero timeout falls back to the package default instead of an
	// immediately-cancelled context.
	r, err := OpenRedis(mr.Addr(), 0, 0)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	r.Close()
}
