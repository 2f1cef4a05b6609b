// Package textutil holds small text helpers shared by the backends.
package textutil
