package toolexec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractsKnownBlocks(t *testing.T) {
	text := "```write:feature_list.json\n[]\n```\nsome prose\n```bash\necho hi\n```\n```ruby\nputs 1\n```"
	blocks := Parse(text)
	require.Len(t, blocks, 2)
	assert.Equal(t, KindWrite, blocks[0].Kind)
	assert.Equal(t, "feature_list.json", blocks[0].Arg)
	assert.Equal(t, "[]", blocks[0].Body)
	assert.Equal(t, KindBash, blocks[1].Kind)
	assert.Equal(t, "echo hi", blocks[1].Body)
}

func TestRunWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	e := NewExecutor(dir, 0)
	out, err := e.runWrite("sub/dir/file.txt", "hello\nworld")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully wrote")

	data, err := os.ReadFile(filepath.Join(dir, "sub/dir/file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", string(data))

	readOut, err := e.runRead("sub/dir/file.txt")
	require.NoError(t, err)
	assert.Contains(t, readOut, "   1 | hello")
	assert.Contains(t, readOut, "   2 | world")
}

func TestRunReadMissingFileIsNonFatal(t *testing.T) {
	e := NewExecutor(t.TempDir(), 0)
	out, err := e.runRead("nope.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "does not exist")
}

func TestRunWriteEmptyPathIsError(t *testing.T) {
	e := NewExecutor(t.TempDir(), 0)
	out, err := e.runWrite("", "x")
	require.NoError(t, err)
	assert.Contains(t, out, "No filename provided")
}

func TestRunShortCircuitsOnSignOff(t *testing.T) {
	dir := t.TempDir()
	e := NewExecutor(dir, 0)
	blocks := []Block{
		{Kind: KindWrite, Arg: "a.txt", Body: "a"},
		{Kind: KindWrite, Arg: "PROJECT_SIGNED_OFF", Body: ""},
		{Kind: KindWrite, Arg: "b.txt", Body: "b"},
	}
	log := e.Run(context.Background(), blocks)
	assert.True(t, log.ShortCircuited)
	assert.Len(t, log.Results, 2)
	_, err := os.Stat(filepath.Join(dir, "b.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunBashTimeoutIsNonFatal(t *testing.T) {
	e := NewExecutor(t.TempDir(), 0)
	e.BashTimeout = 50_000_000 // 50ms in time.Duration units
	out, err := e.runBash(context.Background(), "sleep 5")
	require.NoError(t, err)
	assert.Contains(t, out, "timed out")
}
