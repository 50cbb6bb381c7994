package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := New(10)
	key := Key("list_agents", "rod")

	if _, hit := c.Get(key, time.Minute); hit {
		t.Error("unexpected hit on empty cache")
	}

	c.Set(key, []string{"a-1", "a-2"})
	v, hit := c.Get(key, time.Minute)
	if !hit {
		t.Fatal("expected hit")
	}
	ids, ok := v.([]string)
	if !ok || len(ids) != 2 {
		t.Errorf("value = %#v", v)
	}
}

func TestZeroMaxAgeDisablesLookup(t *testing.T) {
	c := New(10)
	key := Key("list_agents", "rod")
	c.Set(key, "cached")

	if _, hit := c.Get(key, 0); hit {
		t.Error("maxAge 0 must bypass the cache")
	}
}

func TestKeyDistinguishesParts(t *testing.T) {
	if Key("list", "rod") == Key("list", "mcp") {
		t.Error("keys with different parts must differ")
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("part boundaries must be part of the key")
	}
	if Key("list", "rod") != Key("list", "rod") {
		t.Error("keys must be deterministic")
	}
}

func TestCapacityEviction(t *testing.T) {
	c := New(3)
	for i := 0; i < 5; i++ {
		c.Set(Key("op", fmt.Sprintf("%d", i)), i)
	}

	c.mu.RLock()
	n := len(c.store)
	c.mu.RUnlock()
	if n > 3 {
		t.Errorf("store holds %d entries, capacity is 3", n)
	}
}
