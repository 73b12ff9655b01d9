// SPDX-License-Identifier: AGPL-3.0-or-later

package railurl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		raw  string
		want Variant
	}{
		{"s3://bucket/key", VariantObjectStore},
		{"gs://bucket/key", VariantObjectStore},
		{"hdfs://nn/path", VariantDFS},
		{"dfs://nn/path", VariantDFS},
		{"http://example.com/x", VariantHTTP},
		{"https://example.com/x", VariantHTTP},
		{"ftp://example.com/x", VariantFTP},
		{"/local/path", VariantLocal},
		{"relative/path", VariantLocal},
		{"", VariantLocal},
	}

	for _, tc := range cases {
		got := Classify(tc.raw)
		assert.Equal(t, tc.want, got.Variant, "classify(%q)", tc.raw)
		assert.Equal(t, tc.raw, got.Raw)
	}
}

func TestClassify_IsTotal(t *testing.T) {
	// Any string at all must classify to exactly one variant; never panics,
	// never returns an error.
	inputs := []string{"x", "S3://UPPER", "HTTP://UPPER", "://broken", "   "}
	for _, in := range inputs {
		got := Classify(in)
		assert.Contains(t, []Variant{VariantLocal, VariantDFS, VariantObjectStore, VariantHTTP, VariantFTP}, got.Variant)
	}
}

func TestHelper(t *testing.T) {
	assert.Equal(t, HelperFilesystem, Classify("/tmp/x").Helper())
	assert.Equal(t, HelperDFSClient, Classify("hdfs://x").Helper())
	assert.Equal(t, HelperObjectStore, Classify("s3://x").Helper())
	assert.Equal(t, HelperHTTPClient, Classify("http://x").Helper())
	assert.Equal(t, HelperFTPClient, Classify("ftp://x").Helper())
}

func TestDisplayIsRawUnmodified(t *testing.T) {
	u := Classify("s3://bucket/key")
	assert.Equal(t, "s3://bucket/key", u.Display())
}

func TestJoinPreservesVariant(t *testing.T) {
	u := Classify("s3://bucket/prefix")
	joined := u.Join("sub/file.txt")
	assert.Equal(t, VariantObjectStore, joined.Variant)
	assert.Equal(t, "s3://bucket/prefix/sub/file.txt", joined.Raw)
}

func TestMover_LocalExistsGetPutRemoveDir(t *testing.T) {
	ctx := context.Background()
	mover := NewMover(nil)

	srcDir := t.TempDir()
	dstDir := t.TempDir()

	srcFile := filepath.Join(srcDir, "data.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	u := Classify(srcFile)
	exists, err := mover.Exists(ctx, u)
	require.NoError(t, err)
	assert.True(t, exists)

	missing := Classify(filepath.Join(srcDir, "nope.txt"))
	exists, err = mover.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, exists)

	isDir, err := mover.IsDir(ctx, Classify(srcDir))
	require.NoError(t, err)
	assert.True(t, isDir)

	require.NoError(t, mover.Get(ctx, u, dstDir))
	gotBytes, err := os.ReadFile(filepath.Join(dstDir, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(gotBytes))

	putDest := Classify(filepath.Join(dstDir, "uploaded"))
	require.NoError(t, mover.Put(ctx, srcFile, putDest))
	_, err = os.Stat(filepath.Join(putDest.Native(), "data.txt"))
	require.NoError(t, err)

	require.NoError(t, mover.RemoveDir(ctx, Classify(putDest.Native())))
	_, err = os.Stat(putDest.Native())
	assert.True(t, os.IsNotExist(err))
}

func TestMover_NotSupportedOperations(t *testing.T) {
	ctx := context.Background()
	mover := NewMover(nil)

	srcFile := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	err := mover.Put(ctx, srcFile, Classify("http://example.com/x"))
	var urlErr *Error
	require.ErrorAs(t, err, &urlErr)
	assert.Equal(t, ErrNotSupported, urlErr.Kind)
}
