// Package deps checks that external binaries such as ffprobe are installed.
package deps
