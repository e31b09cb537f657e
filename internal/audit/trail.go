package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/logging"
)

// Default timeouts for backend calls.
const (
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadTimeout  = 5 * time.Second
)

// Backend is an append-only record store.
type Backend interface {
	Append(ctx context.Context, rec Record) error
	// List returns the records of one document. Order is backend specific.
	List(ctx context.Context, documentID int64) ([]Record, error)
	Name() string
}

// UserDirectory resolves actor display names in one batch.
type UserDirectory interface {
	UserNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// DegradedError describes an audit write that did not reach its intended
// backend. It is logged, never returned to workflow callers.
type DegradedError struct {
	Backend string
	Err     error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("audit backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }

// Options tunes a Trail. Zero values select the defaults.
type Options struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Trail writes workflow records to a primary backend with a local
// fallback and merges both on read.
type Trail struct {
	primary      Backend
	fallback     Backend
	users        UserDirectory
	writeTimeout time.Duration
	readTimeout  time.Duration
	now          func() time.Time
}

// NewTrail builds a trail. primary may be nil when no remote store is
// configured; fallback is required.
func NewTrail(primary, fallback Backend, users UserDirectory, opts Options) *Trail {
	t := &Trail{
		primary:      primary,
		fallback:     fallback,
		users:        users,
		writeTimeout: opts.WriteTimeout,
		readTimeout:  opts.ReadTimeout,
		now:          opts.Now,
	}
	if t.writeTimeout <= 0 {
		t.writeTimeout = DefaultWriteTimeout
	}
	if t.readTimeout <= 0 {
		t.readTimeout = DefaultReadTimeout
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// ActiveBackend names the backend new records are sent to first.
func (t *Trail) ActiveBackend() string {
	if t.primary != nil {
		return t.primary.Name()
	}
	return t.fallback.Name()
}

// Record persists one action and reports whether any backend accepted it.
// Failures are logged; the caller's cancellation does not abort the write.
func (t *Trail) Record(ctx context.Context, documentID int64, action fiscal.Action, actorID int64, comment string, newStatus fiscal.Status) bool {
	rec := NewRecord(documentID, action, actorID, comment, newStatus, t.now())
	logger := logging.WithFields(ctx,
		"document_id", documentID,
		"action", string(action),
		"record_id", rec.ID,
	)

	if t.primary != nil {
		err := t.append(ctx, t.primary, rec)
		if err == nil {
			return true
		}
		logger.Warn("audit primary write failed, using fallback",
			"backend", t.primary.Name(),
			"error", &DegradedError{Backend: t.primary.Name(), Err: err},
		)
	}

	if err := t.append(ctx, t.fallback, rec); err != nil {
		logger.Error("audit record could not be stored",
			"backend", t.fallback.Name(),
			"error", &DegradedError{Backend: t.fallback.Name(), Err: err},
		)
		return false
	}
	return true
}

func (t *Trail) append(ctx context.Context, b Backend, rec Record) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.writeTimeout)
	defer cancel()
	return b.Append(ctx, rec)
}

// History returns the merged records of a document ordered by time, each
// carrying the actor's display name. It fails only when every backend
// read fails.
func (t *Trail) History(ctx context.Context, documentID int64) ([]Record, error) {
	logger := logging.WithFields(ctx, "document_id", documentID)

	var (
		primaryRecs, localRecs []Record
		primaryErr, localErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	if t.primary != nil {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, t.readTimeout)
			defer cancel()
			primaryRecs, primaryErr = t.primary.List(rctx, documentID)
			return nil
		})
	}
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(gctx, t.readTimeout)
		defer cancel()
		localRecs, localErr = t.fallback.List(rctx, documentID)
		return nil
	})
	_ = g.Wait()

	if primaryErr != nil {
		logger.Warn("audit primary read failed", "backend", t.primary.Name(), "error", primaryErr)
	}
	if localErr != nil {
		logger.Warn("audit fallback read failed", "backend", t.fallback.Name(), "error", localErr)
	}
	if localErr != nil && (t.primary == nil || primaryErr != nil) {
		return nil, errors.Join(primaryErr, localErr)
	}

	merged := mergeRecords(primaryRecs, localRecs)
	t.enrich(ctx, merged)
	return merged, nil
}

// mergeRecords drops duplicate ids (first occurrence wins) and sorts by
// time, keeping input order for ties.
func mergeRecords(lists ...[]Record) []Record {
	seen := make(map[string]bool)
	out := make([]Record, 0)
	for _, list := range lists {
		for _, r := range list {
			if r.ID != "" {
				if seen[r.ID] {
					continue
				}
				seen[r.ID] = true
			}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].RecordedAt < out[j].RecordedAt
	})
	return out
}

func (t *Trail) enrich(ctx context.Context, records []Record) {
	if len(records) == 0 {
		return
	}

	seen := make(map[int64]bool)
	ids := make([]int64, 0)
	for _, r := range records {
		if !seen[r.ActorID] {
			seen[r.ActorID] = true
			ids = append(ids, r.ActorID)
		}
	}

	var names map[int64]string
	if t.users != nil {
		var err error
		names, err = t.users.UserNames(ctx, ids)
		if err != nil {
			logging.FromContext(ctx).Warn("actor name lookup failed", "error", err)
		}
	}

	for i := range records {
		if name, ok := names[records[i].ActorID]; ok && name != "" {
			records[i].ActorName = name
			continue
		}
		records[i].ActorName = UnknownActorName(records[i].ActorID)
	}
}

// UnknownActorName is shown for actors missing from the user directory.
func UnknownActorName(id int64) string {
	return "Usuário ID: " + strconv.FormatInt(id, 10)
}
