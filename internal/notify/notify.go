// Package notify carries informational and badge-earning signals out of
// the sync engine. Emissions are one-way fire-and-forget: the engine
// never consumes them and never blocks on them.
package notify

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Notifier receives informational and error notifications.
type Notifier interface {
	// Info reports a user-facing informational message.
	Info(msg string)

	// Err reports a user-facing failure.
	Err(err error)
}

// LogNotifier writes notifications to a standard logger.
type LogNotifier struct {
	Logger *log.Logger
}

// NewLogNotifier returns a notifier writing to the given logger.
// If logger is nil, a default logger writing to stderr is used.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{Logger: logger}
}

// Info implements Notifier.
func (n *LogNotifier) Info(msg string) {
	n.Logger.Printf("INFO: %s", msg)
}

// Err implements Notifier.
func (n *LogNotifier) Err(err error) {
	n.Logger.Printf("ERROR: %v", err)
}

// Discard drops all notifications. Useful in tests.
type Discard struct{}

func (Discard) Info(msg string) {}
func (Discard) Err(err error)   {}

// Badge feature ids earned by workspace operations.
const (
	BadgeSyncMultipleLocations    = "syncMultipleLocations"
	BadgePublishMultipleLocations = "publishMultipleLocations"
	BadgeTriggerPublish           = "triggerPublish"
	BadgeRemoveFolder             = "removeFolder"
	BadgeRemoveFile               = "removeFile"
	BadgeAddGitlabWorkspace       = "addGitlabWorkspace"
)

// announceDelay batches badge announcements earned in quick succession.
const announceDelay = 5 * time.Second

// Badges tracks one-shot achievements. Each feature id is earned at most
// once; newly earned badges are announced through the notifier after a
// short debounce so a burst of operations yields a single message.
type Badges struct {
	mu       sync.Mutex
	notifier Notifier
	earned   map[string]time.Time
	pending  []string
	timer    *time.Timer
	delay    time.Duration
}

// NewBadges creates a badge tracker announcing through notifier.
func NewBadges(notifier Notifier) *Badges {
	return &Badges{
		notifier: notifier,
		earned:   make(map[string]time.Time),
		delay:    announceDelay,
	}
}

// Add earns the badge for featureID if it has not been earned before.
// Returns true if the badge was newly earned.
func (b *Badges) Add(featureID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.earned[featureID]; ok {
		return false
	}
	b.earned[featureID] = time.Now()
	b.pending = append(b.pending, featureID)

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.announce)
	return true
}

// Earned reports whether the badge for featureID has been earned.
func (b *Badges) Earned(featureID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.earned[featureID]
	return ok
}

// Close flushes any pending announcement immediately.
func (b *Badges) Close() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
	b.announce()
}

func (b *Badges) announce() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	if len(pending) == 1 {
		b.notifier.Info(fmt.Sprintf("You've earned 1 badge: %q.", pending[0]))
		return
	}
	b.notifier.Info(fmt.Sprintf("You've earned %d badges.", len(pending)))
}
