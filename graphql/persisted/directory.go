/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"context"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dgraph-io/ristretto/v2/z"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// FileExtension is the extension of the files in an operations directory.
const FileExtension = ".graphql"

var hashRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidHash reports whether hash is safe to use as a file name.
func ValidHash(hash string) bool {
	return hashRegexp.MatchString(hash)
}

// HashFromFilename returns the hash of an operations file name, ok is false for names
// that do not follow the <hash>.graphql convention.
func HashFromFilename(name string) (string, bool) {
	hash, found := strings.CutSuffix(name, FileExtension)
	if !found || !ValidHash(hash) {
		return "", false
	}
	return hash, true
}

// listing is an immutable view of the operation files present in a directory.
type listing struct {
	files mapset.Set[string]
}

// directoryStore serves the operations stored in one directory.  A background loop
// keeps a listing of the directory; a file is only ever read once it appears in the
// listing, so requests for unknown hashes never touch the disk.  Documents are cached
// forever once read: content published under a hash is assumed never to change.
type directoryStore struct {
	path     string
	fsys     fs.FS
	interval time.Duration
	closer   *z.Closer

	current  atomic.Pointer[listing]
	scanned  chan struct{}
	scanOnce sync.Once

	sync.RWMutex
	docs  map[string]string
	reads singleflight.Group
}

func newDirectoryStore(path string, fsys fs.FS, interval time.Duration) *directoryStore {
	d := &directoryStore{
		path:     path,
		fsys:     fsys,
		interval: interval,
		closer:   z.NewCloser(1),
		scanned:  make(chan struct{}),
		docs:     make(map[string]string),
	}
	d.current.Store(&listing{files: mapset.NewThreadUnsafeSet[string]()})
	go d.refreshLoop()
	return d
}

// refreshLoop lists the directory, then waits for the interval, then lists again.
// The wait starts after a listing completes so slow listings never overlap.
func (d *directoryStore) refreshLoop() {
	defer d.closer.Done()

	timer := time.NewTimer(d.interval)
	timer.Stop()
	for {
		d.refresh()

		timer.Reset(d.interval)
		select {
		case <-d.closer.HasBeenClosed():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (d *directoryStore) refresh() {
	defer d.scanOnce.Do(func() { close(d.scanned) })

	entries, err := fs.ReadDir(d.fsys, ".")
	if err != nil {
		glog.Errorf("While listing persisted operations directory %s, keeping previous "+
			"listing of %d files: %v", d.path, d.current.Load().files.Cardinality(), err)
		return
	}

	files := mapset.NewThreadUnsafeSet[string]()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := HashFromFilename(entry.Name()); ok {
			files.Add(entry.Name())
		}
	}
	prev := d.current.Swap(&listing{files: files})
	directoryFiles.WithLabelValues(d.path).Set(float64(files.Cardinality()))
	if glog.V(2) && prev.files.Cardinality() != files.Cardinality() {
		glog.Infof("Persisted operations directory %s now has %d files (was %d)",
			d.path, files.Cardinality(), prev.files.Cardinality())
	}
}

func (d *directoryStore) lookup(ctx context.Context, hash string) (string, error) {
	if !ValidHash(hash) {
		return "", errors.Wrapf(ErrInvalidHash, "%q", hash)
	}
	if doc, ok := d.cached(hash); ok {
		return doc, nil
	}

	name := hash + FileExtension
	if !d.current.Load().files.Contains(name) {
		return "", errors.Wrapf(ErrUnknownHash, "%q not listed in %s", hash, d.path)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err, _ := d.reads.Do(hash, func() (interface{}, error) {
		if doc, ok := d.cached(hash); ok {
			return doc, nil
		}
		b, err := fs.ReadFile(d.fsys, name)
		if err != nil {
			return nil, errors.Wrapf(err, "while reading persisted operation %s", name)
		}
		doc := string(b)
		d.Lock()
		d.docs[hash] = doc
		d.Unlock()
		return doc, nil
	})
	if err != nil {
		return "", err
	}
	return doc.(string), nil
}

func (d *directoryStore) cached(hash string) (string, bool) {
	d.RLock()
	defer d.RUnlock()
	doc, ok := d.docs[hash]
	return doc, ok
}

func (d *directoryStore) close() {
	d.closer.SignalAndWait()
}
