// Package policy implements the pure visibility decision function for
// data-room documents. It has no side effects and no storage access: every
// input is resolved by the caller and passed in, which keeps the full
// decision space unit-testable.
package policy

import (
	"errors"

	"github.com/dealbridge/dataroom/internal/models"
)

// Action is the operation being evaluated against a document.
type Action string

const (
	ActionList     Action = "list"
	ActionView     Action = "view"
	ActionDownload Action = "download"
)

// ErrScanPending signals the requested version has not been scanned yet.
// The caller may retry once scanning completes.
var ErrScanPending = errors.New("policy: virus scan pending")

// ErrScanBlocked signals the requested version was flagged by scanning.
// Terminal for that version, for every role including the owner.
var ErrScanBlocked = errors.New("policy: virus scan blocked")

// Input carries every fact the evaluator needs. Role is the caller's
// resolved room role, NDASatisfied the ledger state, HasTransaction the
// registry answer for transaction-gated documents and HasGrant the
// presence of an explicit allow-list entry for custom visibility.
type Input struct {
	Action         Action
	Role           models.Role
	NDASatisfied   bool
	HasTransaction bool
	HasGrant       bool

	Visibility           models.Visibility
	DownloadBlocked      bool
	RoomDownloadsEnabled bool
}

// Allowed evaluates the rules in precedence order: room managers first,
// then the NDA gate, then the visibility mode, then download gating.
func Allowed(in Input) bool {
	manages := in.Role.ManagesRoom()

	if !manages {
		if !in.NDASatisfied {
			return false
		}

		switch in.Visibility {
		case models.VisibilityAll, models.VisibilityNDAOnly:
			// NDA already satisfied above.
		case models.VisibilityOwnerOnly:
			return false
		case models.VisibilityTransactionOnly:
			if !in.HasTransaction {
				return false
			}
		case models.VisibilityCustom:
			if !in.HasGrant {
				return false
			}
		default:
			// Unknown mode: deny rather than fall through to permissive.
			return false
		}
	}

	if in.Action == ActionDownload {
		// Document-level blocks bind everyone, including room managers.
		if in.DownloadBlocked {
			return false
		}
		// The room-level toggle binds only non-managers.
		if !manages && !in.RoomDownloadsEnabled {
			return false
		}
	}

	return true
}

// VersionAvailable checks whether a version's scan status permits serving
// it. Only clean versions may be served; pending is retryable, blocked is
// terminal regardless of role.
func VersionAvailable(status models.ScanStatus) error {
	switch status {
	case models.ScanStatusClean:
		return nil
	case models.ScanStatusPending:
		return ErrScanPending
	default:
		return ErrScanBlocked
	}
}
