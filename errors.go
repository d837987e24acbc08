package assetcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key has no usable entry: it was never
	// registered, or its bytes are reachable neither locally nor remotely.
	ErrNotFound = errors.New("assetcache: not found")

	// ErrRemoteDisabled is returned by tier and migration operations when no
	// remote store is configured.
	ErrRemoteDisabled = errors.New("assetcache: s3 disabled")
)

// SourceMissingError reports a Set/CreateVariant call whose backing file does
// not exist. This indicates an upstream bug and is always surfaced.
type SourceMissingError struct {
	Key  string
	Path string
	Err  error
}

func (e *SourceMissingError) Error() string {
	return fmt.Sprintf("register %q: source file %q: %v", e.Key, e.Path, e.Err)
}

func (e *SourceMissingError) Unwrap() error { return e.Err }

// LineageError reports a CreateVariant call whose new key already belongs to
// the source asset's lineage. Accepting it would link the records into a
// cycle.
type LineageError struct {
	SourceKey string
	NewKey    string
}

func (e *LineageError) Error() string {
	return fmt.Sprintf("variant %q of %q: key already in lineage", e.NewKey, e.SourceKey)
}

// DemoteError reports a demotion that could not safely remove the local copy.
// Either the upload failed or the remote copy could not be verified; in both
// cases the local file is untouched.
type DemoteError struct {
	Key       string
	UploadErr error
	VerifyErr error
}

func (e *DemoteError) Error() string {
	switch {
	case e.UploadErr != nil && e.VerifyErr != nil:
		return fmt.Sprintf("demote %q failed: upload=%v; verify=%v", e.Key, e.UploadErr, e.VerifyErr)
	case e.UploadErr != nil:
		return fmt.Sprintf("demote %q: upload failed: %v", e.Key, e.UploadErr)
	case e.VerifyErr != nil:
		return fmt.Sprintf("demote %q: remote verification failed: %v", e.Key, e.VerifyErr)
	default:
		return fmt.Sprintf("demote %q: unknown error", e.Key)
	}
}

func (e *DemoteError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.UploadErr != nil {
		errs = append(errs, e.UploadErr)
	}
	if e.VerifyErr != nil {
		errs = append(errs, e.VerifyErr)
	}
	return errs
}
