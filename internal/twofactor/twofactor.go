// Package twofactor holds the second-factor policy checks consulted by the
// HTTP layer before credential routes. The core knows nothing about HTTP
// sessions; TOTP code verification and QR provisioning are external
// capabilities.
package twofactor

// Settings is the per-user two-factor state.
type Settings struct {
	// Enabled reports whether the user turned on TOTP.
	Enabled bool
	// Confirmed reports whether the user completed device enrollment.
	Confirmed bool
}

// Session is the per-session verification state supplied by the caller.
type Session struct {
	// Verified reports whether a valid second factor was presented in this
	// session.
	Verified bool
}

// RequiresSecondFactor reports whether the user must present a second factor.
// An unconfirmed device does not gate access; enrollment must complete first.
func RequiresSecondFactor(s Settings) bool {
	return s.Enabled && s.Confirmed
}

// IsVerifiedThisSession reports whether the session already passed the second
// factor.
func IsVerifiedThisSession(s Session) bool {
	return s.Verified
}

// Allow reports whether a request may proceed: either the user does not
// require a second factor, or the session already verified one.
func Allow(user Settings, session Session) bool {
	return !RequiresSecondFactor(user) || IsVerifiedThisSession(session)
}
