// Package repository persists conversation state. Every store returns
// found=false for unknown sessions and wraps domain.ErrStateCorrupt when a
// stored record cannot be decoded.
package repository

import "errors"

// ErrConflict is returned by Put when the stored conversation no longer
// matches the Version the state was read at.
var ErrConflict = errors.New("repository: conversation was modified concurrently")
