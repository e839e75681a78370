/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const apolloManifestJSON = `{
  "format": "apollo-persisted-query-manifest",
  "version": 1,
  "operations": [
    {"id": "abc123", "name": "Ping", "type": "query", "body": "query Ping { ping }"},
    {"id": "def456", "name": "Pong", "type": "mutation", "body": "mutation Pong { pong }"}
  ]
}`

func writeManifest(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	want := map[string]string{
		"abc123": "query Ping { ping }",
		"def456": "mutation Pong { pong }",
	}
	tests := map[string]struct {
		name    string
		content string
	}{
		"apollo": {name: "manifest.json", content: apolloManifestJSON},
		"plain json": {name: "ops.json",
			content: `{"abc123": "query Ping { ping }", "def456": "mutation Pong { pong }"}`},
		"yaml": {name: "ops.yaml",
			content: "abc123: query Ping { ping }\ndef456: |-\n  mutation Pong { pong }\n"},
	}
	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			ops, err := LoadManifest(writeManifest(t, tcase.name, tcase.content))
			require.NoError(t, err)
			if diff := cmp.Diff(want, ops); diff != "" {
				t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadManifest_Errors(t *testing.T) {
	tests := map[string]struct {
		name    string
		content string
	}{
		"not json":      {name: "ops.json", content: "abc123: nope"},
		"wrong format":  {name: "m.json", content: `{"format": "relay", "version": 1, "operations": []}`},
		"non string":    {name: "ops.json", content: `{"abc123": 1}`},
		"empty doc":     {name: "ops.json", content: `{"abc123": " "}`},
		"bad yaml":      {name: "ops.yml", content: "abc123: [unterminated"},
		"duplicate ids": {name: "m.json", content: `{"format": "apollo-persisted-query-manifest", "version": 1, "operations": [{"id": "a", "body": "{ a }"}, {"id": "a", "body": "{ b }"}]}`},
	}
	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadManifest(writeManifest(t, tcase.name, tcase.content))
			require.Error(t, err)
		})
	}

	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
