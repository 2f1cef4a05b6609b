// Package interpret turns user input (streaming links, query expressions and
// file system paths) into library tokens.
package interpret
