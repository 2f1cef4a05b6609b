// Package playlistfile exposes M3U files and directories as playlists.
//
// Both answer a url group holding the title, versioned by the modification
// time of the file or directory, and a read group listing the tracks and
// child playlists found inside. Relative M3U entries resolve against the
// playlist's own directory.
package playlistfile
