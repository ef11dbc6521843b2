package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeWriter implements PositionWriter for tests
type fakeWriter struct {
	strict   bool // reject coordinates the way redis GEOADD does
	failGeo  int  // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	lastGeo  *redis.GeoLocation
	lastKey  string
	lastMeta map[string]interface{}
}

func (f *fakeWriter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.strict && (math.Abs(loc.Latitude) > 85.05112878 || math.Abs(loc.Longitude) > 180 || math.IsNaN(loc.Latitude) || math.IsNaN(loc.Longitude)) {
		return fmt.Errorf("ERR invalid longitude,latitude pair %f,%f", loc.Longitude, loc.Latitude)
	}
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	f.lastGeo = loc
	return nil
}

func (f *fakeWriter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastKey = key
	f.lastMeta = values
	return nil
}

func TestRecordWritesPositionAndMeta(t *testing.T) {
	f := &fakeWriter{}
	p := NewPositions(f, "users_geo")
	if err := p.Record(context.Background(), "alice", NewLocation(1, 2), 1000); err != nil {
		t.Fatalf("unexpected err=%v", err)
	}
	if f.lastGeo == nil || f.lastGeo.Name != "alice" || f.lastGeo.Latitude != 1 || f.lastGeo.Longitude != 2 {
		t.Fatalf("unexpected geo entry %+v", f.lastGeo)
	}
	if f.lastKey != "user:meta:alice" || f.lastMeta["last_active"] != "1000" {
		t.Fatalf("unexpected meta %s=%v", f.lastKey, f.lastMeta)
	}
}

func TestRecordSucceedsAfterRetries(t *testing.T) {
	f := &fakeWriter{failGeo: 1, failH: 1}
	p := NewPositions(f, "users_geo").WithRetry(3, 5*time.Millisecond)
	start := time.Now()
	if err := p.Record(context.Background(), "bob", NewLocation(1, 2), 1); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestRecordFailsWhenExhausted(t *testing.T) {
	f := &fakeWriter{failGeo: 5}
	p := NewPositions(f, "users_geo").WithRetry(3, time.Millisecond)
	if err := p.Record(context.Background(), "bob", NewLocation(1, 2), 1); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.geoCalls)
	}
}

func TestCloseWithoutClient(t *testing.T) {
	if err := NewPositions(&fakeWriter{}, "k").Close(); err != nil {
		t.Fatalf("unexpected err=%v", err)
	}
}

func TestRecordOutsideGeoRangeStillWritesMeta(t *testing.T) {
	for _, loc := range []Location{NewLocation(86, 10), NewLocation(-90, 0), NewLocation(10, 200), NewLocation(math.NaN(), 0)} {
		f := &fakeWriter{strict: true}
		p := NewPositions(f, "users_geo").WithRetry(3, time.Millisecond)
		if err := p.Record(context.Background(), "alice", loc, 1000); err != nil {
			t.Fatalf("%v: unexpected err=%v", loc, err)
		}
		if f.geoCalls != 0 {
			t.Fatalf("%v: expected GEOADD to be skipped, got %d calls", loc, f.geoCalls)
		}
		if f.lastMeta["last_active"] != "1000" {
			t.Fatalf("%v: expected last_active to be written, got %v", loc, f.lastMeta)
		}
		if p.Skipped() != 1 {
			t.Fatalf("%v: expected 1 skipped, got %d", loc, p.Skipped())
		}
	}
}

func TestRecordInsideGeoRangeUsesGeoAdd(t *testing.T) {
	f := &fakeWriter{strict: true}
	p := NewPositions(f, "users_geo")
	if err := p.Record(context.Background(), "alice", NewLocation(85.05, -179.9), 1); err != nil {
		t.Fatalf("unexpected err=%v", err)
	}
	if f.geoCalls != 1 || p.Skipped() != 0 {
		t.Fatalf("expected one GEOADD and no skips, got geo=%d skipped=%d", f.geoCalls, p.Skipped())
	}
}

func TestRecordWithZeroAttemptsStillTriesOnce(t *testing.T) {
	f := &fakeWriter{}
	p := NewPositions(f, "users_geo").WithRetry(0, time.Millisecond)
	if err := p.Record(context.Background(), "alice", NewLocation(1, 2), 1); err != nil {
		t.Fatalf("unexpected err=%v", err)
	}
	if f.geoCalls != 1 {
		t.Fatalf("expected 1 attempt, got %d", f.geoCalls)
	}

	f = &fakeWriter{failGeo: 5}
	p = NewPositions(f, "users_geo").WithRetry(-2, time.Millisecond)
	err := p.Record(context.Background(), "alice", NewLocation(1, 2), 1)
	if err == nil || !strings.Contains(err.Error(), "geo fail") {
		t.Fatalf("expected wrapped geo failure, got %v", err)
	}
}
