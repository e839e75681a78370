/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package persisted resolves the operation hash carried by a GraphQL request into a
// previously registered operation document, so that a server only executes
// operations from an allowlist.
//
// Operations can come from a static table, a caller supplied getter or a directory
// of <hash>.graphql files.  A Registry owns everything that lives for as long as the
// server: the lookups derived from each Options value and the background listing of
// every operations directory.
package persisted

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultRefreshInterval is the delay between the end of one directory listing and
// the start of the next one.
const DefaultRefreshInterval = 5 * time.Second

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRefreshInterval sets the delay between directory listings.
func WithRefreshInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.refreshInterval = d
		}
	}
}

// WithFS makes the registry open operations directories through open instead of
// os.DirFS.
func WithFS(open func(dir string) fs.FS) RegistryOption {
	return func(r *Registry) {
		if open != nil {
			r.openFS = open
		}
	}
}

// Registry memoises lookups per Options value and owns the operations directories.
// It is safe for concurrent use.  Entries are never evicted: the registry is meant to
// be created once by the server startup path and kept for the life of the server.
type Registry struct {
	sync.Mutex
	lookups map[*Options]LookupFunc
	dirs    map[string]*directoryStore

	refreshInterval time.Duration
	openFS          func(dir string) fs.FS
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		lookups:         make(map[*Options]LookupFunc),
		dirs:            make(map[string]*directoryStore),
		refreshInterval: DefaultRefreshInterval,
		openFS:          os.DirFS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the lookup selected by opts.  The result is computed once per opts
// pointer; later calls with the same pointer return the same LookupFunc.  It returns
// ErrConfigurationConflict when opts sets more than one lookup strategy, and a
// lookup that always fails with ErrNotConfigured when it sets none.
func (r *Registry) Lookup(opts *Options) (LookupFunc, error) {
	if opts == nil {
		return notConfigured, nil
	}

	r.Lock()
	defer r.Unlock()
	if fn, ok := r.lookups[opts]; ok {
		return fn, nil
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var fn LookupFunc
	switch {
	case opts.Operations != nil:
		fn = StaticLookup(opts.Operations)
	case opts.Getter != nil:
		fn = LookupFunc(opts.Getter)
	case opts.Directory != "":
		fn = r.directoryLocked(opts.Directory).lookup
	default:
		fn = notConfigured
	}
	r.lookups[opts] = fn
	return fn, nil
}

// Ready returns a channel that is closed once the first listing of dir has finished,
// whether it succeeded or not.  It starts watching dir if nothing did so yet.
func (r *Registry) Ready(dir string) <-chan struct{} {
	r.Lock()
	defer r.Unlock()
	return r.directoryLocked(dir).scanned
}

// Close stops the background listing of every operations directory.  Lookups keep
// working against the last listing and the documents already read.
func (r *Registry) Close() {
	r.Lock()
	dirs := make([]*directoryStore, 0, len(r.dirs))
	for _, d := range r.dirs {
		dirs = append(dirs, d)
	}
	r.Unlock()

	for _, d := range dirs {
		d.close()
	}
}

func (r *Registry) directoryLocked(dir string) *directoryStore {
	key := filepath.Clean(dir)
	if d, ok := r.dirs[key]; ok {
		return d
	}
	glog.Infof("Watching persisted operations directory %s every %s", key, r.refreshInterval)
	d := newDirectoryStore(key, r.openFS(key), r.refreshInterval)
	r.dirs[key] = d
	return d
}

func notConfigured(_ context.Context, _ string) (string, error) {
	return "", ErrNotConfigured
}
