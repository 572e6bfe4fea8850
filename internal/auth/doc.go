// Package auth supplies the bearer credential and the viewer identity.
//
// # Token sources
//
// TokenSource implementations read the credential from a flag value,
// an environment variable, or a token file; Chain tries them in
// order. The credential is issued by the backend at login; this
// client only carries it.
//
// # Identity
//
// IdentityFromToken reads the JWT claims without verifying the
// signature. The client never trusts the token for authorization -
// the broker and backend do that - it only needs the user ID for
// self-message suppression, and the role for hiding employee commands
// the backend would reject anyway.
package auth
