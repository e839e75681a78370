/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package check

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/gqlparser/v2/ast"
	"github.com/dgraph-io/gqlparser/v2/parser"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hypermodeinc/persisted-operations/graphql/persisted"
	"github.com/hypermodeinc/persisted-operations/x"
)

// Check is the sub-command invoked when running "persisted check".
var Check x.SubCommand

func init() {
	Check.Cmd = &cobra.Command{
		Use:   "check <dir>",
		Short: "Check the persisted operations in a directory",
		Long: `
Check lists the <hash>.graphql files in dir and parses every document. It reports
files whose name is not a valid hash and documents that do not parse. Documents are
not validated against a schema.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(cmd.OutOrStdout(), args[0]); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	Check.EnvPrefix = "PERSISTED_CHECK"
}

func run(w io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "while listing operations directory")
	}

	var result *multierror.Error
	var count int
	var total uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, persisted.FileExtension) {
			continue
		}
		hash, ok := persisted.HashFromFilename(name)
		if !ok {
			result = multierror.Append(result, errors.Errorf("%s: not a valid operation hash", name))
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		doc, gqlErr := parser.ParseQuery(&ast.Source{Name: name, Input: string(data)})
		if gqlErr != nil {
			result = multierror.Append(result, errors.Wrapf(gqlErr, "%s", name))
			continue
		}

		count++
		total += uint64(len(data))
		fmt.Fprintf(w, "%s\t%s\t%s\n", hash, humanize.Bytes(uint64(len(data))),
			strings.Join(operationNames(doc), ","))
	}
	fmt.Fprintf(w, "%d operations, %s\n", count, humanize.Bytes(total))
	return result.ErrorOrNil()
}

func operationNames(doc *ast.QueryDocument) []string {
	names := make([]string, 0, len(doc.Operations))
	for _, op := range doc.Operations {
		name := op.Name
		if name == "" {
			name = "<anonymous>"
		}
		names = append(names, string(op.Operation)+" "+name)
	}
	return names
}
