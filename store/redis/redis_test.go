package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis"
	goredis "github.com/redis/go-redis/v9"

	bookmark "github.com/alexgridx/bookmark-store"
)

func runMiniredis(t *testing.T) *goredis.Client {
	t.Helper()

	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis error: %v", err)
	}
	t.Cleanup(s.Close)

	return goredis.NewClient(&goredis.Options{
		Addr: s.Addr(),
	})
}

func Test_StoreOptions(t *testing.T) {
	ctx := context.TODO()
	client := runMiniredis(t)

	_, err := New(ctx, "haclient", WithClient(client))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
}

func Test_BookmarkLifecycle(t *testing.T) {
	ctx := context.TODO()
	client := runMiniredis(t)

	s, err := New(ctx, "haclient", WithClient(client))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	// nothing recorded yet
	if val := s.MostRecent("orders"); val != bookmark.Epoch {
		t.Fatalf("most recent expected %s, got %s", bookmark.Epoch, val)
	}

	// discard
	msg := bookmark.Message{SubID: "orders", Bookmark: "15837261|442|"}
	if err := s.Discard(ctx, msg); err != nil {
		t.Fatalf("discard error: %v", err)
	}

	// most recent
	if val := s.MostRecent("orders"); val != "15837261|442|" {
		t.Fatalf("most recent expected %s, got %s", "15837261|442|", val)
	}
}

func Test_Recovery(t *testing.T) {
	ctx := context.TODO()
	client := runMiniredis(t)

	first, err := New(ctx, "haclient", WithClient(client))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	if err := first.Discard(ctx, bookmark.Message{SubID: "orders", Bookmark: "15837261|442|"}); err != nil {
		t.Fatalf("discard error: %v", err)
	}

	// a later store recovers the progress the first one persisted
	second, err := New(ctx, "haclient", WithClient(client))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	if val := second.MostRecent("orders"); val != "15837261|442|" {
		t.Fatalf("most recent expected %s, got %s", "15837261|442|", val)
	}

	// other tracked clients do not see it
	other, err := New(ctx, "reporting", WithClient(client))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	if val := other.MostRecent("orders"); val != bookmark.Epoch {
		t.Fatalf("most recent expected %s, got %s", bookmark.Epoch, val)
	}
}

func Test_DiscardMissingFields(t *testing.T) {
	ctx := context.TODO()
	client := runMiniredis(t)

	s, err := New(ctx, "haclient", WithClient(client))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	if err := s.Discard(ctx, bookmark.Message{SubID: "orders"}); err != nil {
		t.Fatalf("discard error expected nil, got %v", err)
	}
	if val := s.MostRecent("orders"); val != bookmark.Epoch {
		t.Fatalf("most recent expected %s, got %s", bookmark.Epoch, val)
	}
}

func Test_key(t *testing.T) {
	ctx := context.TODO()
	client := runMiniredis(t)

	s, err := New(ctx, "haclient", WithClient(client))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	want := "haclient:bookmark"

	if got := s.key(); got != want {
		t.Fatalf("bookmark key, want %s, got %s", want, got)
	}
}
