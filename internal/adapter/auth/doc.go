// Package auth resolves the identity of an upgrading WebSocket client from
// the auth application's session cookie or from a signed bearer token.
// Resolution happens once per connection; the identity never changes afterwards.
package auth
