/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ApolloManifestFormat is the format field of an Apollo persisted query manifest.
const ApolloManifestFormat = "apollo-persisted-query-manifest"

// apolloManifest is the file generated by @apollo/generate-persisted-query-manifest.
type apolloManifest struct {
	Format     string            `json:"format"`
	Version    int               `json:"version"`
	Operations []apolloOperation `json:"operations"`
}

type apolloOperation struct {
	ID   string `json:"id"`
	Body string `json:"body"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// LoadManifest reads a static operations table from path.  Files ending in .yaml or
// .yml hold a hash: document mapping.  Other files are JSON, either an Apollo
// persisted query manifest or a plain {"hash": "document"} object.
func LoadManifest(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "while reading operations manifest")
	}
	var ops map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		ops, err = parseYAMLManifest(data)
	default:
		ops, err = ParseJSONManifest(data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "while parsing operations manifest %s", path)
	}
	glog.Infof("Loaded %d persisted operations from %s", len(ops), path)
	return ops, nil
}

// ParseJSONManifest parses an Apollo persisted query manifest or a plain JSON
// object mapping hashes to documents.
func ParseJSONManifest(data []byte) (map[string]string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["operations"]; !ok {
		ops := make(map[string]string, len(probe))
		if err := json.Unmarshal(data, &ops); err != nil {
			return nil, errors.Wrap(err, "expected a hash to document object")
		}
		return ops, checkHashes(ops)
	}

	var m apolloManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Format != ApolloManifestFormat {
		return nil, errors.Errorf("unsupported manifest format %q", m.Format)
	}
	if m.Version != 1 {
		glog.Warningf("Apollo manifest version %d is newer than the supported version 1",
			m.Version)
	}
	ops := make(map[string]string, len(m.Operations))
	for _, op := range m.Operations {
		if prev, ok := ops[op.ID]; ok && prev != op.Body {
			return nil, errors.Errorf("operation %q (%s) is listed twice with different bodies",
				op.ID, op.Name)
		}
		ops[op.ID] = op.Body
	}
	return ops, checkHashes(ops)
}

func parseYAMLManifest(data []byte) (map[string]string, error) {
	ops := make(map[string]string)
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return nil, err
	}
	return ops, checkHashes(ops)
}

func checkHashes(ops map[string]string) error {
	for hash, doc := range ops {
		if hash == "" {
			return errors.New("operation with an empty hash")
		}
		if strings.TrimSpace(doc) == "" {
			return errors.Errorf("operation %q has an empty document", hash)
		}
	}
	return nil
}
