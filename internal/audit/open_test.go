package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/fiscal/internal/config"
)

func TestOpen_LocalOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "historico")
	trail, closeFn, err := Open(context.Background(), &config.AuditConfig{LocalDir: dir}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer closeFn()

	if got := trail.ActiveBackend(); got != "local" {
		t.Errorf("ActiveBackend() = %q, want local", got)
	}
	if !trail.Record(context.Background(), 1, "CONFIRMAR", 1, "ok", "PROVISIONADO") {
		t.Fatal("Record() = false")
	}
	recs, err := trail.History(context.Background(), 1)
	if err != nil || len(recs) != 1 {
		t.Fatalf("History() = %v, %v", recs, err)
	}
}

func TestOpen_RequiresLocalDir(t *testing.T) {
	if _, _, err := Open(context.Background(), &config.AuditConfig{}, nil); err == nil {
		t.Error("Open() without a local directory succeeded")
	}
}
