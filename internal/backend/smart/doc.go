// Package smart provides query playlists: playlists whose tracks are every
// cached track matching an expr-lang expression such as
// `genre == "Jazz" && year < 1970`.
package smart
