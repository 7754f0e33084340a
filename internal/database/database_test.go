package database

import (
	"reflect"
	"testing"
	"testing/fstest"
)

func TestListMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_add_outcome_index.sql":   {Data: []byte("SELECT 1;")},
		"001_assistant_exchanges.sql": {Data: []byte("SELECT 1;")},
		"002_add_latency.sql":         {Data: []byte("SELECT 1;")},
		"README.md":                   {Data: []byte("notes")},
		"000_placeholder.sql":         {Data: []byte("SELECT 1;")},
		"3_short_version.sql":         {Data: []byte("SELECT 1;")},
		"004_draft.sql.bak":           {Data: []byte("SELECT 1;")},
		"archive/005_old.sql":         {Data: []byte("SELECT 1;")},
	}

	got, err := listMigrations(fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []migration{
		{version: 1, name: "001_assistant_exchanges.sql"},
		{version: 2, name: "002_add_latency.sql"},
		{version: 10, name: "010_add_outcome_index.sql"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestListMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_assistant_exchanges.sql": {Data: []byte("SELECT 1;")},
		"001_exchange_outcomes.sql":   {Data: []byte("SELECT 1;")},
	}

	if _, err := listMigrations(fsys); err == nil {
		t.Fatal("expected an error for two migrations sharing a version")
	}
}

func TestPoolSize(t *testing.T) {
	tests := []struct {
		workers  int
		expected int32
	}{
		{0, 3},
		{-4, 3},
		{1, 3},
		{2, 4},
		{8, 10},
	}

	for _, tc := range tests {
		if got := PoolSize(tc.workers); got != tc.expected {
			t.Errorf("PoolSize(%d): expected %d, got %d", tc.workers, tc.expected, got)
		}
	}
}

func TestClientOptions(t *testing.T) {
	queue, pubsub, err := clientOptions("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if queue.ClientName != queueClientName || pubsub.ClientName != pubsubClientName {
		t.Errorf("unexpected client names %q and %q", queue.ClientName, pubsub.ClientName)
	}
	if queue.Addr != "localhost:6379" || pubsub.Addr != "localhost:6379" {
		t.Errorf("expected both clients on localhost:6379, got %q and %q", queue.Addr, pubsub.Addr)
	}
	if queue.DB != 2 || pubsub.DB != 2 {
		t.Errorf("expected database 2, got %d and %d", queue.DB, pubsub.DB)
	}

	if _, _, err := clientOptions("http://localhost:6379"); err == nil {
		t.Error("expected an error for a non-redis URL")
	}
}
