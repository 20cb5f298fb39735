package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAppendsJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path, 0, 0)
	require.NoError(t, err)
	defer j.Close()

	j.Write("INSERT INTO t (a) VALUES (?)", []any{1}, "", true, "")
	j.Write("INSERT INTO t (a) VALUES (?)", []any{2}, "", false, "constraint failed")
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
}

func TestRotationShiftsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path, 200, 2)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 50; i++ {
		j.Write(fmt.Sprintf("INSERT INTO t (a) VALUES (%d)", i), nil, "", true, "")
	}

	require.FileExists(t, path)
	_, err = os.Stat(path + ".1")
	require.NoError(t, err, "rotation should have produced a .1 backup")
}

func TestReplaySkipsFailuresWhenOnlySuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path, 0, 0)
	require.NoError(t, err)
	j.Write("INSERT INTO data (id, value) VALUES (1, 'ONE')", nil, "", true, "")
	j.Write("INSERT INTO data (id, value) VALUES (2, 'BAD')", nil, "", false, "broke")
	j.Write("INSERT INTO data (id, value) VALUES (2, 'two')", nil, "", true, "")
	require.NoError(t, j.Close())

	var executed []string
	result := Replay(path, func(sqlText string, params any) error {
		executed = append(executed, sqlText)
		return nil
	}, true, 0)

	require.Equal(t, 2, result.Replayed)
	require.Equal(t, 0, result.Failed)
	require.Len(t, executed, 2)
}

func TestReplayCountsExecuteErrorsAsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path, 0, 0)
	require.NoError(t, err)
	j.Write("INSERT INTO t VALUES (1)", nil, "", true, "")
	j.Write("INSERT INTO t VALUES (2)", nil, "", true, "")
	require.NoError(t, j.Close())

	calls := 0
	result := Replay(path, func(sqlText string, params any) error {
		calls++
		if calls == 2 {
			return fmt.Errorf("boom")
		}
		return nil
	}, true, 0)

	require.Equal(t, 1, result.Replayed)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
}

func TestReplayRespectsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path, 0, 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		j.Write("INSERT INTO t VALUES (?)", []any{i}, "", true, "")
	}
	require.NoError(t, j.Close())

	result := Replay(path, func(sqlText string, params any) error { return nil }, true, 2)
	require.Equal(t, 2, result.Replayed)
}

func TestReplayMissingFileReportsError(t *testing.T) {
	result := Replay(filepath.Join(t.TempDir(), "missing.jsonl"), func(string, any) error { return nil }, true, 0)
	require.Equal(t, 0, result.Replayed)
	require.NotEmpty(t, result.Errors)
}
