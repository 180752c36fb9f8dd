// Package publish pushes file content to its publish locations.
//
// Publishing is one-way: content flows out to remote targets and is
// never pulled back. Each location is published under its scheduler
// slot, and a failure on one location never prevents the others from
// being attempted, except while the system is in a declared offline
// state, in which case an unreachable backend halts the pass and the
// error propagates.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/notify"
	"github.com/SamTV12345/stackedit/internal/provider"
	"github.com/SamTV12345/stackedit/internal/queue"
	"github.com/SamTV12345/stackedit/internal/workspace"
)

// ErrPublishNotPossible is returned when a publish request finds no
// publish location to act on.
var ErrPublishNotPossible = errors.New("no publish location")

// requestInterval is how often a pending publish request re-attempts.
const requestInterval = time.Second

// Config holds collaborators for an Engine.
type Config struct {
	// LightMode disables publish requests entirely.
	LightMode bool

	// UserActive reports whether the user is currently judged active.
	// A pending publish request only fires while this returns true.
	// Nil means always active.
	UserActive func() bool

	// Offline reports whether the system is in a declared offline
	// state. While offline, an unreachable backend halts the publish
	// pass instead of being notified and skipped. Nil means never
	// offline.
	Offline func() bool

	// Notifier receives publish outcome notifications. Nil discards them.
	Notifier notify.Notifier

	// Badges receives one-shot achievement signals. Nil disables them.
	Badges *notify.Badges

	// Logger for publish activity. Nil uses a default stderr logger.
	Logger *log.Logger
}

// Engine publishes workspace files to their publish locations.
type Engine struct {
	store     *workspace.Store
	providers *provider.Set
	sched     *queue.Scheduler

	lightMode  bool
	userActive func() bool
	offline    func() bool
	notifier   notify.Notifier
	badges     *notify.Badges
	logger     *log.Logger
}

// New creates a publish engine.
func New(store *workspace.Store, providers *provider.Set, sched *queue.Scheduler, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	userActive := cfg.UserActive
	if userActive == nil {
		userActive = func() bool { return true }
	}
	offline := cfg.Offline
	if offline == nil {
		offline = func() bool { return false }
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[publish] ", log.LstdFlags)
	}
	return &Engine{
		store:      store,
		providers:  providers,
		sched:      sched,
		lightMode:  cfg.LightMode,
		userActive: userActive,
		offline:    offline,
		notifier:   notifier,
		badges:     cfg.Badges,
		logger:     logger,
	}
}

// PublishFile publishes the file's content to every publish location it
// has, each under its own scheduler slot. A per-location failure is
// notified and the remaining locations are still attempted, unless the
// system is in a declared offline state and the backend is unreachable,
// in which case the pass halts and the error propagates. The aggregate
// count of successful locations is notified at the end.
func (e *Engine) PublishFile(ctx context.Context, fileID string) error {
	it := e.store.Item(fileID)
	if it == nil {
		return fmt.Errorf("file %s: not found", fileID)
	}
	content := e.store.Content(fileID)
	if content == nil {
		return fmt.Errorf("file %s: no content", fileID)
	}

	locations := e.store.LocationsByFile(fileID, item.KindPublish)
	if len(locations) == 0 {
		return ErrPublishNotPossible
	}

	published := 0
	for _, loc := range locations {
		if err := e.publishLocation(ctx, content, loc); err != nil {
			if provider.IsRetryable(err) && e.offline() {
				// Offline, so reaching the remaining backends is
				// pointless too.
				return fmt.Errorf("failed to publish %q: %w", it.Name, err)
			}
			e.logger.Printf("WARNING: failed to publish %s to %s: %v", it.Name, loc.Path, err)
			e.notifier.Err(fmt.Errorf("failed to publish %q to %s: %w", it.Name, loc.Path, err))
			continue
		}
		published++
	}

	e.notifier.Info(fmt.Sprintf("%q was published to %d location(s).", it.Name, published))
	return nil
}

// publishLocation uploads the content to one location under its
// scheduler slot and records the updated location and synced hash.
func (e *Engine) publishLocation(ctx context.Context, content *item.Content, loc *item.Location) error {
	prov, err := e.providers.Get(loc.ProviderID)
	if err != nil {
		return err
	}
	token, err := prov.Authenticate(ctx, e.store.Workspace())
	if err != nil {
		return err
	}

	return e.sched.Do(ctx, loc.RemoteKey(), func(ctx context.Context) error {
		newLoc, err := prov.UploadContent(ctx, token, content, loc)
		if err != nil {
			return err
		}
		e.store.PatchLocation(newLoc)
		e.store.SetSyncedHash(loc.FileID, loc.ID, content.Hash)
		return nil
	})
}

// CreateLocation publishes the file once to a new location and stores
// the returned location record.
func (e *Engine) CreateLocation(ctx context.Context, loc *item.Location) (*item.Location, error) {
	it := e.store.Item(loc.FileID)
	if it == nil {
		return nil, fmt.Errorf("file %s: not found", loc.FileID)
	}
	content := e.store.Content(loc.FileID)
	if content == nil {
		return nil, fmt.Errorf("file %s: no content", loc.FileID)
	}

	prov, err := e.providers.Get(loc.ProviderID)
	if err != nil {
		return nil, err
	}
	token, err := prov.Authenticate(ctx, e.store.Workspace())
	if err != nil {
		return nil, err
	}

	var uploaded *item.Location
	err = e.sched.Do(ctx, loc.RemoteKey(), func(ctx context.Context) error {
		var uploadErr error
		uploaded, uploadErr = prov.UploadContent(ctx, token, content, loc)
		return uploadErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish %q: %w", it.Name, err)
	}

	stored := e.store.AddPublishLocation(*uploaded)
	if stored != nil {
		e.store.SetSyncedHash(loc.FileID, stored.ID, content.Hash)
	}
	e.notifier.Info(fmt.Sprintf("%q is now published to %s.", it.Name, prov.Name()))
	return stored, nil
}

// RequestPublish schedules a publish pass for the file. Requests
// coalesce: at most one is pending at a time. The pending request
// attempts immediately and then every second while the user is judged
// active, cancels itself on the first successful pass, and gives up
// when the file has no publish location. In light mode this is a no-op.
func (e *Engine) RequestPublish(ctx context.Context, fileID string) {
	if e.lightMode {
		return
	}

	attempt := func(ctx context.Context) bool {
		if !e.userActive() {
			return false
		}
		err := e.PublishFile(ctx, fileID)
		if errors.Is(err, ErrPublishNotPossible) {
			return true
		}
		if err != nil {
			e.logger.Printf("WARNING: publish request attempt failed: %v", err)
			return false
		}
		if e.badges != nil {
			e.badges.Add(notify.BadgeTriggerPublish)
		}
		return true
	}

	go func() {
		_, err := e.sched.EnqueuePublishRequest(ctx, func(ctx context.Context) error {
			if attempt(ctx) {
				return nil
			}
			task := queue.Schedule(requestInterval, attempt)
			defer task.Stop()

			select {
			case <-task.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			e.logger.Printf("WARNING: publish request failed: %v", err)
		}
	}()
}
