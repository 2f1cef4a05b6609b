// Package ffprobe wraps ffprobe JSON output for audio files.
//
// Inspect runs ffprobe restricted to audio streams and returns a Result whose
// helpers expose the codec, duration, bitrate, sample rate and container
// tags used by the local file backend's analysis group.
package ffprobe
