//go:build unit

/*
Copyright (c) The DynamoDBtoCSV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package utils

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCsvStringToSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, CsvStringToSlice("a, b ,c"))
	assert.Equal(t, []string{"id"}, CsvStringToSlice("id,,"))
	assert.Empty(t, CsvStringToSlice(""))
}

func TestErrExitUsesHook(t *testing.T) {
	var code int
	SetExitHook(func(c int) { code = c })
	defer SetExitHook(nil)

	var sb strings.Builder
	SetDiagnosticOutput(&sb)
	defer SetDiagnosticOutput(nil)

	ErrExit("bad table %q: %w", "orders", errors.New("missing"))
	assert.Equal(t, 1, code)
	assert.Equal(t, "bad table \"orders\": missing\n", sb.String())
	assert.EqualError(t, ErrExitErr, "bad table \"orders\": missing")
}

func TestFileOrFolderExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, FileOrFolderExists(dir))
	assert.False(t, FileOrFolderExists(filepath.Join(dir, "nope")))
}
