// Package oauthflow wraps the Google OAuth2/OIDC handshake: discovery,
// authorization URL construction, and the code-for-token exchange.
//
// It supports a degraded-trust mode where ID-token signatures are not
// re-verified against Google's JWKS, for deployments whose outbound
// network path (typically an HTTP proxy) makes the JWKS fetch
// unreliable. The extracted claim map is handed to the identity
// resolver; nothing here touches the user directory.
package oauthflow
