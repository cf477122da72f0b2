package detector

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCacheContainsAndInsert(t *testing.T) {
	c := NewCache(10, testLogger())
	at := time.UnixMilli(1640995200000)

	if c.Contains("NEWUSDT", at) {
		t.Error("empty cache should not contain anything")
	}

	c.Insert("NEWUSDT", at)
	if !c.Contains("NEWUSDT", at) {
		t.Error("inserted entry not found")
	}
	if c.Size() != 1 {
		t.Errorf("size = %d, want 1", c.Size())
	}
}

func TestCacheKeyIncludesTimestamp(t *testing.T) {
	c := NewCache(10, testLogger())
	first := time.UnixMilli(1000)
	relisted := time.UnixMilli(2000)

	c.Insert("NEWUSDT", first)

	// A re-listing of the same symbol at a different millisecond is a
	// distinct event, not a duplicate.
	if c.Contains("NEWUSDT", relisted) {
		t.Error("distinct listing timestamp must not hit the cache")
	}
}

func TestCacheClearsOnOverflow(t *testing.T) {
	c := NewCache(3, testLogger())
	base := time.UnixMilli(0)

	c.Insert("A", base)
	c.Insert("B", base)
	c.Insert("C", base)
	if c.Size() != 3 {
		t.Fatalf("size = %d, want 3", c.Size())
	}

	// At capacity: the next insert clears everything first.
	c.Insert("D", base)
	if c.Size() != 1 {
		t.Errorf("size after overflow = %d, want 1", c.Size())
	}
	if c.Contains("A", base) {
		t.Error("cleared entry still present")
	}
	if !c.Contains("D", base) {
		t.Error("new entry missing after clear")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Load([]string{"BTCUSDT", "ETHUSDT"})

	if !r.Contains("BTCUSDT") {
		t.Error("loaded symbol missing")
	}
	if r.Contains("NEWUSDT") {
		t.Error("unknown symbol reported present")
	}

	r.Add("NEWUSDT")
	if !r.Contains("NEWUSDT") {
		t.Error("added symbol missing")
	}
	if r.Len() != 3 {
		t.Errorf("len = %d, want 3", r.Len())
	}
}
