// Package auth implements the login and privilege elevation exchanges of an
// interactive session.
//
// Both exchanges only observe prompt events from the session scanner. Login
// answers every credential prompt with the password until a ready prompt
// appears; an end of stream after a credential prompt means the password was
// rejected, a silent remote end surfaces as ErrLoginTimeout. Enable runs the
// same loop after sending the elevation keyword but never fails.
package auth
