package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vetref/vetref/internal/config"
	"github.com/vetref/vetref/internal/platform/blobstore"
	"github.com/vetref/vetref/internal/platform/db"
	"github.com/vetref/vetref/internal/platform/events"
	"github.com/vetref/vetref/migrations"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "migrate up": false, "migrate status": false}
	for _, c := range root.Commands() {
		if c.Name() == "serve" {
			want["serve"] = true
		}
		if c.Name() == "migrate" {
			for _, sub := range c.Commands() {
				want["migrate "+sub.Name()] = true
			}
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestNewObjectStore_Memory(t *testing.T) {
	cfg := &config.Config{Port: "8000", StorageBackend: config.StorageMemory}
	store, mem, err := newObjectStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newObjectStore: %v", err)
	}
	if mem == nil || store != blobstore.ObjectStore(mem) {
		t.Fatal("memory backend should return the MemoryStore for serving")
	}
	if got := store.PublicURL("blood-tests", "a/b.png"); got != "http://localhost:8000/storage/blood-tests/a/b.png" {
		t.Errorf("unexpected public url %q", got)
	}
}

func TestNewObjectStore_S3(t *testing.T) {
	cfg := &config.Config{
		StorageBackend:    config.StorageS3,
		S3Region:          "eu-west-1",
		S3AccessKeyID:     "AKIDEXAMPLE",
		S3SecretAccessKey: "secret",
	}
	store, mem, err := newObjectStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newObjectStore: %v", err)
	}
	if mem != nil {
		t.Error("s3 backend must not expose a memory store")
	}
	if _, ok := store.(*blobstore.S3Store); !ok {
		t.Errorf("expected *S3Store, got %T", store)
	}
}

func TestNewPublisher(t *testing.T) {
	if _, ok := newPublisher(&config.Config{}).(events.NopPublisher); !ok {
		t.Error("expected a no-op publisher without brokers")
	}
	p := newPublisher(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "case-timeline"})
	if _, ok := p.(*events.KafkaPublisher); !ok {
		t.Errorf("expected *KafkaPublisher, got %T", p)
	}
	p.Close()
}

func TestEmbeddedMigrations(t *testing.T) {
	ms, err := db.NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(ms) == 0 || ms[0].Version != 1 {
		t.Fatalf("expected migration 001 first, got %+v", ms)
	}
	for _, table := range []string{"cases", "case_documents", "case_timeline"} {
		if !strings.Contains(ms[0].SQL, "CREATE TABLE "+table) {
			t.Errorf("schema is missing table %s", table)
		}
	}
	if len(ms) < 2 || ms[1].Version != 2 || !strings.Contains(ms[1].SQL, "CREATE TABLE case_responses") {
		t.Error("expected migration 002 to create case_responses")
	}
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	printStatus(cmd, []db.MigrationStatus{
		{Version: 1, Name: "referral", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "reports"},
	})
	out := buf.String()
	if !strings.Contains(out, "applied") || !strings.Contains(out, "2026-01-02 03:04:05") || !strings.Contains(out, "pending") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
