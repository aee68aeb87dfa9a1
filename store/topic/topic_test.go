package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	bookmark "github.com/alexgridx/bookmark-store"
)

func Test_New(t *testing.T) {
	ctx := context.TODO()
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return [][]byte{
				[]byte(`{"clientName": "haclient", "subId": "orders", "bookmark": "15837261|442|"}`),
				[]byte(`{"clientName": "haclient", "subId": "invoices", "bookmark": "15837261|87|"}`),
			}, nil
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	if val := s.MostRecent("orders"); val != "15837261|442|" {
		t.Errorf("most recent expected %s, got %s", "15837261|442|", val)
	}
	if val := s.MostRecent("invoices"); val != "15837261|87|" {
		t.Errorf("most recent expected %s, got %s", "15837261|87|", val)
	}

	// unknown subscription resumes from the epoch
	if val := s.MostRecent("shipments"); val != bookmark.Epoch {
		t.Errorf("most recent expected %s, got %s", bookmark.Epoch, val)
	}
}

func Test_New_Validation(t *testing.T) {
	ctx := context.TODO()
	client := &clientMock{}

	if _, err := New(ctx, nil, "/sow/bookmarkStore", "haclient"); err == nil {
		t.Errorf("new store error expected not nil, got %v", err)
	}
	if _, err := New(ctx, client, "", "haclient"); err == nil {
		t.Errorf("new store error expected not nil, got %v", err)
	}
	if _, err := New(ctx, client, "/sow/bookmarkStore", ""); err == nil {
		t.Errorf("new store error expected not nil, got %v", err)
	}
}

func Test_New_QueryScopedToClient(t *testing.T) {
	ctx := context.TODO()

	var gotTopic, gotFilter string
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			gotTopic, gotFilter = topic, filter
			return nil, nil
		},
	}

	if _, err := New(ctx, client, "/sow/bookmarkStore", "haclient"); err != nil {
		t.Fatalf("new store error: %v", err)
	}

	if gotTopic != "/sow/bookmarkStore" {
		t.Errorf("query topic expected %s, got %s", "/sow/bookmarkStore", gotTopic)
	}
	if want := "/clientName = 'haclient'"; gotFilter != want {
		t.Errorf("query filter expected %s, got %s", want, gotFilter)
	}
}

func Test_New_QueryError(t *testing.T) {
	ctx := context.TODO()
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return nil, errors.New("not logged on")
		},
	}

	_, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err == nil {
		t.Fatalf("new store error expected not nil, got %v", err)
	}

	var rerr *bookmark.RecoveryError
	if !errors.As(err, &rerr) {
		t.Fatalf("new store error expected recovery error, got %v", err)
	}
}

func Test_New_SkipsMalformedRows(t *testing.T) {
	ctx := context.TODO()
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return [][]byte{
				[]byte(`not json`),
				[]byte(`{"clientName": "haclient", "subId": "orders"}`),
				[]byte(`{"clientName": "haclient", "bookmark": "15837261|12|"}`),
				[]byte(`{"clientName": "haclient", "subId": "invoices", "bookmark": "15837261|87|"}`),
			}, nil
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	if val := s.MostRecent("orders"); val != bookmark.Epoch {
		t.Errorf("most recent expected %s, got %s", bookmark.Epoch, val)
	}
	if val := s.MostRecent("invoices"); val != "15837261|87|" {
		t.Errorf("most recent expected %s, got %s", "15837261|87|", val)
	}
}

func Test_New_DuplicateRows(t *testing.T) {
	ctx := context.TODO()
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return [][]byte{
				[]byte(`{"clientName": "haclient", "subId": "orders", "bookmark": "15837261|12|"}`),
				[]byte(`{"clientName": "haclient", "subId": "orders", "bookmark": "15837261|442|"}`),
			}, nil
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	if val := s.MostRecent("orders"); val != "15837261|442|" {
		t.Errorf("most recent expected %s, got %s", "15837261|442|", val)
	}
}

func Test_Discard(t *testing.T) {
	ctx := context.TODO()

	var gotTopic string
	var gotData []byte
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return nil, nil
		},
		publishMock: func(ctx context.Context, topic string, data []byte) error {
			gotTopic, gotData = topic, data
			return nil
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	msg := bookmark.Message{SubID: "orders", Bookmark: "15837261|442|"}
	if err := s.Discard(ctx, msg); err != nil {
		t.Fatalf("discard error: %v", err)
	}

	if gotTopic != "/sow/bookmarkStore" {
		t.Errorf("publish topic expected %s, got %s", "/sow/bookmarkStore", gotTopic)
	}

	var rec record
	if err := json.Unmarshal(gotData, &rec); err != nil {
		t.Fatalf("publish payload error: %v", err)
	}
	if rec.ClientName != "haclient" || rec.SubID != "orders" || rec.Bookmark != "15837261|442|" {
		t.Errorf("publish payload expected %s, got %s", `{haclient orders 15837261|442|}`, fmt.Sprintf("%v", rec))
	}

	// the discarded bookmark becomes the resume point
	if val := s.MostRecent("orders"); val != "15837261|442|" {
		t.Errorf("most recent expected %s, got %s", "15837261|442|", val)
	}
}

func Test_Discard_MissingFields(t *testing.T) {
	ctx := context.TODO()

	var published int
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return nil, nil
		},
		publishMock: func(ctx context.Context, topic string, data []byte) error {
			published++
			return nil
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	// messages outside a resumable subscription are ignored
	if err := s.Discard(ctx, bookmark.Message{Bookmark: "15837261|442|"}); err != nil {
		t.Errorf("discard error expected nil, got %v", err)
	}
	if err := s.Discard(ctx, bookmark.Message{SubID: "orders"}); err != nil {
		t.Errorf("discard error expected nil, got %v", err)
	}

	if published != 0 {
		t.Errorf("publish count expected %d, got %d", 0, published)
	}
}

func Test_Discard_PublishError(t *testing.T) {
	ctx := context.TODO()
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return nil, nil
		},
		publishMock: func(ctx context.Context, topic string, data []byte) error {
			return errors.New("not connected")
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	err = s.Discard(ctx, bookmark.Message{SubID: "orders", Bookmark: "15837261|442|"})
	if err == nil {
		t.Fatalf("discard error expected not nil, got %v", err)
	}

	var perr *bookmark.PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("discard error expected persist error, got %v", err)
	}
	if perr.SubID != "orders" || perr.Bookmark != "15837261|442|" {
		t.Errorf("persist error expected %s %s, got %s %s", "orders", "15837261|442|", perr.SubID, perr.Bookmark)
	}

	// a failed discard must not advance the resume point
	if val := s.MostRecent("orders"); val != bookmark.Epoch {
		t.Errorf("most recent expected %s, got %s", bookmark.Epoch, val)
	}
}

func Test_Discard_Idempotent(t *testing.T) {
	ctx := context.TODO()

	var published int
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return nil, nil
		},
		publishMock: func(ctx context.Context, topic string, data []byte) error {
			published++
			return nil
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	msg := bookmark.Message{SubID: "orders", Bookmark: "15837261|442|"}
	if err := s.Discard(ctx, msg); err != nil {
		t.Fatalf("discard error: %v", err)
	}
	if err := s.Discard(ctx, msg); err != nil {
		t.Fatalf("discard error: %v", err)
	}

	if published != 2 {
		t.Errorf("publish count expected %d, got %d", 2, published)
	}
	if val := s.MostRecent("orders"); val != "15837261|442|" {
		t.Errorf("most recent expected %s, got %s", "15837261|442|", val)
	}
}

func Test_IsDiscarded(t *testing.T) {
	ctx := context.TODO()
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return [][]byte{
				[]byte(`{"clientName": "haclient", "subId": "orders", "bookmark": "15837261|442|"}`),
			}, nil
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	// in-order discarding means an arriving message is never already seen
	msg := bookmark.Message{SubID: "orders", Bookmark: "15837261|442|"}
	if s.IsDiscarded(msg) {
		t.Errorf("is discarded expected %v, got %v", false, true)
	}
}

func Test_Log(t *testing.T) {
	ctx := context.TODO()
	client := &clientMock{
		queryMock: func(ctx context.Context, topic, filter string) ([][]byte, error) {
			return nil, nil
		},
	}

	s, err := New(ctx, client, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	if val := s.Log(bookmark.Message{SubID: "orders", Bookmark: "15837261|442|"}); val != "1" {
		t.Errorf("log expected %s, got %s", "1", val)
	}
}

func Test_RecoveryRoundTrip(t *testing.T) {
	ctx := context.TODO()
	ft := &fakeTopic{}

	first, err := New(ctx, ft, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	discards := []bookmark.Message{
		{SubID: "orders", Bookmark: "15837261|12|"},
		{SubID: "orders", Bookmark: "15837261|442|"},
		{SubID: "invoices", Bookmark: "15837261|87|"},
	}
	for _, msg := range discards {
		if err := first.Discard(ctx, msg); err != nil {
			t.Fatalf("discard error: %v", err)
		}
	}

	// a later store recovers the progress the first one persisted
	second, err := New(ctx, ft, "/sow/bookmarkStore", "haclient")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}

	if val := second.MostRecent("orders"); val != "15837261|442|" {
		t.Errorf("most recent expected %s, got %s", "15837261|442|", val)
	}
	if val := second.MostRecent("invoices"); val != "15837261|87|" {
		t.Errorf("most recent expected %s, got %s", "15837261|87|", val)
	}

	// other tracked clients do not see it
	other, err := New(ctx, ft, "/sow/bookmarkStore", "reporting")
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	if val := other.MostRecent("orders"); val != bookmark.Epoch {
		t.Errorf("most recent expected %s, got %s", bookmark.Epoch, val)
	}
}

type clientMock struct {
	queryMock   func(ctx context.Context, topic, filter string) ([][]byte, error)
	publishMock func(ctx context.Context, topic string, data []byte) error
}

func (c *clientMock) Query(ctx context.Context, topic, filter string) ([][]byte, error) {
	return c.queryMock(ctx, topic, filter)
}

func (c *clientMock) Publish(ctx context.Context, topic string, data []byte) error {
	return c.publishMock(ctx, topic, data)
}

// fakeTopic keeps the current record per clientName and subId pair, the way
// a key-defined state-of-the-world topic does
type fakeTopic struct {
	mu   sync.Mutex
	rows map[string][]byte
}

func (ft *fakeTopic) Publish(ctx context.Context, topic string, data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.rows == nil {
		ft.rows = map[string][]byte{}
	}
	ft.rows[rec.ClientName+"/"+rec.SubID] = data
	return nil
}

func (ft *fakeTopic) Query(ctx context.Context, topic, filter string) ([][]byte, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	var out [][]byte
	for key, data := range ft.rows {
		name, _, _ := strings.Cut(key, "/")
		if filter == fmt.Sprintf("/clientName = '%s'", name) {
			out = append(out, data)
		}
	}
	return out, nil
}
