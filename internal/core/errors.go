package core

import "errors"

var (
	// ErrServerNotFound is returned by trigger and queue methods when no
	// plan exists for the requested server.
	ErrServerNotFound = errors.New("server plan not found")

	// ErrUnknownTaskKind is returned for a task kind outside the closed set.
	ErrUnknownTaskKind = errors.New("unknown task kind")

	// ErrUnknownManualKind is returned for a manual task kind outside the
	// closed set, or a payload that does not match its kind.
	ErrUnknownManualKind = errors.New("unknown manual task kind")

	// ErrSessionExpired marks an automation failure caused by a dead game
	// session. The scheduler treats it as an ordinary failure; the activity
	// log distinguishes it so operators know a re-login is needed.
	ErrSessionExpired = errors.New("game session expired")

	// ErrCaptchaBlocked marks an automation failure caused by the site's
	// bot protection. Requires manual action, hence its own activity event.
	ErrCaptchaBlocked = errors.New("blocked by captcha")
)
