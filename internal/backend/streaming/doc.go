// Package streaming exposes the tracks, playlists and users of a streaming
// service as library entities.
//
// The api subpackage wraps the HTTP endpoints. Track, Playlist and User fetch
// their request groups through it and stamp values with the fetch time, since
// the API offers no orderable revision.
package streaming
