package audit

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/fiscal/internal/config"
)

// Open builds the trail described by cfg. The local directory is
// mandatory. Firestore is used as primary when a project is configured;
// a client that cannot be created is logged and the trail runs on the
// local backend alone.
//
// The returned close function releases the Firestore client, if any.
func Open(ctx context.Context, cfg *config.AuditConfig, users UserDirectory) (*Trail, func(), error) {
	local, err := NewLocalBackend(cfg.LocalDir)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {}
	var primary Backend
	if cfg.FirestoreEnabled() {
		fs, err := NewFirestoreBackend(ctx, cfg.FirestoreProject, cfg.FirestoreCredentials, cfg.FirestoreCollection)
		if err != nil {
			slog.Warn("firestore unavailable, audit records go to the local directory only",
				"project", cfg.FirestoreProject,
				"error", err,
			)
		} else {
			primary = fs
			closeFn = func() {
				if err := fs.Close(); err != nil {
					slog.Warn("close firestore client", "error", err)
				}
			}
		}
	}

	trail := NewTrail(primary, local, users, Options{
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
	})
	slog.Info("audit trail ready",
		"backend", trail.ActiveBackend(),
		"local_dir", local.Dir(),
	)
	return trail, closeFn, nil
}
