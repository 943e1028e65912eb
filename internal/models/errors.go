package models

import "errors"

var (
	// ErrNoSession is returned when a user-scoped operation has no user id.
	ErrNoSession = errors.New("no active session")
	// ErrListingNotFound is returned when a listing document does not exist.
	ErrListingNotFound = errors.New("listing not found")
	// ErrNotSignedIn is returned when no cached profile exists and sign-in is not possible.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrPermissionDenied is returned by the media picker outside the media root.
	ErrPermissionDenied = errors.New("permission to access media denied")
	// ErrPickCancelled is returned when no image was picked.
	ErrPickCancelled = errors.New("image pick cancelled")
)
