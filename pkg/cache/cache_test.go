package cache

import (
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New[string]()
	c.Set("bpartner:1", "ACME", 1*time.Second)
	val, ok := c.Get("bpartner:1")
	if !ok || val != "ACME" {
		t.Fatalf("expected ACME, got %v, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	c := New[string]()
	c.Set("bpartner:1", "ACME", 100*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	_, ok := c.Get("bpartner:1")
	if ok {
		t.Fatalf("expected expired key to return false")
	}
}

func TestDelete(t *testing.T) {
	c := New[string]()
	c.Set("warehouse:7", "MAIN", 1*time.Second)
	c.Delete("warehouse:7")
	_, ok := c.Get("warehouse:7")
	if ok {
		t.Fatalf("expected deleted key to return false")
	}
}

func TestClear(t *testing.T) {
	c := New[int]()
	c.Set("a", 1, 1*time.Second)
	c.Set("b", 2, 1*time.Second)
	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected cleared cache to be empty")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected cleared cache to be empty")
	}
}
