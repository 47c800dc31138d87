// Package identity normalizes the claim set of a completed Google OIDC
// handshake into the shape the user directory stores.
//
// Resolution is a two-attempt loop over the same token payload: the second
// pass exists because upstream verification can be unreliable behind
// restrictive proxies, and re-reading the already-obtained payload avoids a
// second network call. A claim set without a subject never leaves this
// package.
package identity
