// Package api is a small client for the streaming service's web API: tracks,
// audio features, playlists and user profiles, authenticated with a bearer
// token.
package api
