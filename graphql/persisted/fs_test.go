/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"io/fs"
	"sync"
	"testing/fstest"
	"time"
)

// testFS is an in memory operations directory that counts how it is accessed.
type testFS struct {
	sync.Mutex
	files fstest.MapFS

	opens, reads, lists   int
	inflight, maxInflight int
	listErr               error
	listDelay             time.Duration
	// gate, when set, blocks every listing until it is closed.
	gate chan struct{}
}

func newTestFS(files map[string]string) *testFS {
	t := &testFS{files: fstest.MapFS{}}
	for name, content := range files {
		t.files[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return t
}

func (t *testFS) Open(name string) (fs.File, error) {
	t.Lock()
	defer t.Unlock()
	t.opens++
	return t.files.Open(name)
}

func (t *testFS) ReadFile(name string) ([]byte, error) {
	t.Lock()
	defer t.Unlock()
	t.reads++
	return t.files.ReadFile(name)
}

func (t *testFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if t.gate != nil {
		<-t.gate
	}
	t.Lock()
	t.inflight++
	if t.inflight > t.maxInflight {
		t.maxInflight = t.inflight
	}
	delay := t.listDelay
	t.Unlock()

	time.Sleep(delay)

	t.Lock()
	defer t.Unlock()
	t.inflight--
	t.lists++
	if t.listErr != nil {
		return nil, t.listErr
	}
	return t.files.ReadDir(name)
}

func (t *testFS) set(name, content string) {
	t.Lock()
	defer t.Unlock()
	t.files[name] = &fstest.MapFile{Data: []byte(content)}
}

func (t *testFS) remove(name string) {
	t.Lock()
	defer t.Unlock()
	delete(t.files, name)
}

func (t *testFS) failListings(err error) {
	t.Lock()
	defer t.Unlock()
	t.listErr = err
}

// fileAccesses is the number of times file contents were opened or read.
func (t *testFS) fileAccesses() int {
	t.Lock()
	defer t.Unlock()
	return t.opens + t.reads
}

func (t *testFS) listings() int {
	t.Lock()
	defer t.Unlock()
	return t.lists
}

func (t *testFS) open(string) fs.FS {
	return t
}
