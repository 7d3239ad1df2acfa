package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepatch/pkg/contract"
)

func noTmpLeft(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "tmp file not cleaned: %s", e.Name())
	}
}

// 原子写：已存在时替换为新内容。
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Write(ctx, "Profile.jsx", contract.NewDocument("v1")))
	require.NoError(t, w.Write(ctx, "Profile.jsx", contract.NewDocument("v2\nline")))

	b, err := os.ReadFile(filepath.Join(dir, "Profile.jsx"))
	require.NoError(t, err)
	assert.Equal(t, "v2\nline", string(b))
	noTmpLeft(t, dir)
}

func TestWriteNonAtomicNested(t *testing.T) {
	dir := t.TempDir()
	a := false
	w, err := New(&Options{BaseDir: dir, Atomic: &a})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "admin/Users.jsx", contract.NewDocument("v")))
	b, err := os.ReadFile(filepath.Join(dir, "admin", "Users.jsx"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(b))
}

type closeFailFile struct {
	*os.File
}

func (f closeFailFile) Close() error {
	_ = f.File.Close()
	return errors.New("close: quota exceeded")
}

// 非原子写：Close 失败时返回错误，不能当作写回成功。
func TestWriteNonAtomicCloseError(t *testing.T) {
	orig := openTrunc
	openTrunc = func(dest string, perm os.FileMode) (io.WriteCloser, error) {
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
		if err != nil {
			return nil, err
		}
		return closeFailFile{f}, nil
	}
	t.Cleanup(func() { openTrunc = orig })

	a := false
	w, err := New(&Options{BaseDir: t.TempDir(), Atomic: &a})
	require.NoError(t, err)
	err = w.Write(context.Background(), "Profile.jsx", contract.NewDocument("v"))
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestWriteBackup(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "Events.jsx")
	require.NoError(t, os.WriteFile(p, []byte("old"), 0o644))
	w, err := New(&Options{BaseDir: dir, BackupSuffix: ".bak"})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "Events.jsx", contract.NewDocument("new")))

	b, err := os.ReadFile(p + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))
	b, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))

	// 目标不存在时不生成备份
	require.NoError(t, w.Write(context.Background(), "Fresh.jsx", contract.NewDocument("x")))
	_, err = os.Stat(filepath.Join(dir, "Fresh.jsx.bak"))
	assert.True(t, os.IsNotExist(err))
}

func TestWritePathInvalid(t *testing.T) {
	w, err := New(&Options{BaseDir: t.TempDir()})
	require.NoError(t, err)
	err = w.Write(context.Background(), "../bad.jsx", contract.NewDocument("x"))
	assert.ErrorIs(t, err, contract.ErrPathInvalid)
}

func TestWriteCtxCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{BaseDir: dir})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Write(ctx, "a.jsx", contract.NewDocument("data")), context.Canceled)
	noTmpLeft(t, dir)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Options{})
	assert.Error(t, err)
}
