// Package sync implements the reconciliation engine: it compares local
// item and content hashes against provider-reported remote state and
// decides, per tracked location, whether to pull, push, or surface a
// conflict.
//
// The engine is resilient: individual location failures are logged and
// counted but never abort a workspace pass.
package sync

// Decision is the outcome of comparing local state against the remote
// report for one location. The engine performs I/O based on the
// decision.
type Decision int

const (
	// DecisionSkip means neither side changed since the last sync.
	DecisionSkip Decision = iota

	// DecisionPull means the remote changed and local did not: download
	// and overwrite local content, update the cached hash.
	DecisionPull

	// DecisionPush means local changed and the remote did not: upload
	// and record the new remote revision.
	DecisionPush

	// DecisionConflict means both sides changed. No destructive action
	// is taken; resolution requires an explicit user choice.
	DecisionConflict

	// DecisionDeleteLocal means the remote object is gone and the local
	// file is clean: delete the local file.
	DecisionDeleteLocal

	// DecisionRestoreRemote means the remote object is gone but the
	// local file has unsynced changes: upload local back up.
	DecisionRestoreRemote
)

// String returns a short name for the decision.
func (d Decision) String() string {
	switch d {
	case DecisionSkip:
		return "skip"
	case DecisionPull:
		return "pull"
	case DecisionPush:
		return "push"
	case DecisionConflict:
		return "conflict"
	case DecisionDeleteLocal:
		return "delete-local"
	case DecisionRestoreRemote:
		return "restore-remote"
	default:
		return "unknown"
	}
}

// Decide maps the change flags of both sides to a decision for a
// location whose remote object still exists.
func Decide(localChanged, remoteChanged bool) Decision {
	switch {
	case !localChanged && !remoteChanged:
		return DecisionSkip
	case remoteChanged && !localChanged:
		return DecisionPull
	case localChanged && !remoteChanged:
		return DecisionPush
	default:
		return DecisionConflict
	}
}

// DecideMissing maps the local change flag to a decision for a location
// whose remote object no longer exists.
func DecideMissing(localChanged bool) Decision {
	if localChanged {
		return DecisionRestoreRemote
	}
	return DecisionDeleteLocal
}
