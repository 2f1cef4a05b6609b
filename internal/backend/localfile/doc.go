// Package localfile exposes audio files on disk as library tracks.
//
// A track answers two request groups. The read group parses embedded tags
// with github.com/dhowden/tag and falls back to a title derived from the file
// name. The analysis group runs ffprobe on a bounded worker pool and keeps
// the results in a file cache keyed by path and modification time. Values are
// versioned by the file's modification time.
package localfile
