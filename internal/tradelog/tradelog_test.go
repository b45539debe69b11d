package tradelog

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-backtest/internal/types"
)

func fixedJournal(t *testing.T) (*Journal, string) {
	dir := t.TempDir()
	j := New(dir)
	j.now = func() time.Time { return time.Date(2024, 5, 6, 20, 0, 0, 0, time.UTC) }
	return j, dir
}

func readEntries(t *testing.T, path string) []Entry {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestRecordOutcomeAndFailure(t *testing.T) {
	j, dir := fixedJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordOutcome(ctx, "run-1", types.TradeOutcome{
		Symbol: "TCS", EntryPrice: 10, ExitPrice: 11, PnLPct: 10, ExitReason: types.ExitTargetProfit, Source: "yahoo",
	}))
	require.NoError(t, j.RecordFailure(ctx, "run-1", types.FailedTrade{
		Symbol: "GHOST", Reason: types.FailDataUnavailable, Error: "nope",
	}))

	// 20:00 UTC is already the next day in IST.
	entries := readEntries(t, filepath.Join(dir, "runs", "2024-05-07.txt"))
	require.Len(t, entries, 2)
	assert.Equal(t, "OUTCOME", entries[0].Kind)
	assert.Equal(t, "TCS", entries[0].Symbol)
	assert.Equal(t, types.ExitTargetProfit, entries[0].ExitReason)
	assert.Equal(t, "2024-05-07 01:30:00", entries[0].Time)
	assert.Equal(t, "FAILED", entries[1].Kind)
	assert.Equal(t, types.FailDataUnavailable, entries[1].Reason)
}

func TestConcurrentAppendsStayLineDelimited(t *testing.T) {
	j, dir := fixedJournal(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, j.Append(Entry{Kind: "OUTCOME", Symbol: "X"}))
		}()
	}
	wg.Wait()
	assert.Len(t, readEntries(t, filepath.Join(dir, "runs", "2024-05-07.txt")), 50)
}

func TestCompressOlder(t *testing.T) {
	j, dir := fixedJournal(t)
	require.NoError(t, j.Append(Entry{Kind: "OUTCOME", Symbol: "OLD"}))
	path := filepath.Join(dir, "runs", "2024-05-07.txt")

	old := j.now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(path, old, old))

	fresh := filepath.Join(dir, "runs", "2024-05-06.txt")
	require.NoError(t, os.WriteFile(fresh, []byte("{}\n"), 0o644))
	require.NoError(t, os.Chtimes(fresh, j.now(), j.now()))

	require.NoError(t, j.CompressOlder(7))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)

	f, err := os.Open(path + ".gz")
	require.NoError(t, err)
	defer f.Close()
	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"symbol":"OLD"`)

	assert.NoError(t, j.CompressOlder(0))
}

func TestCompressOlderReplacesTruncatedArchive(t *testing.T) {
	j, dir := fixedJournal(t)
	require.NoError(t, j.Append(Entry{Kind: "OUTCOME", Symbol: "KEEP"}))
	path := filepath.Join(dir, "runs", "2024-05-07.txt")
	old := j.now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(path, old, old))

	// a half-written archive left behind by an interrupted pass
	require.NoError(t, os.WriteFile(path+".gz", []byte{0x1f, 0x8b, 0x08}, 0o644))

	require.NoError(t, j.CompressOlder(7))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	f, err := os.Open(path + ".gz")
	require.NoError(t, err)
	defer f.Close()
	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"symbol":"KEEP"`)
}

func TestCompressFileKeepsSourceOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "2024-05-01.txt")
	require.NoError(t, os.WriteFile(src, []byte("{}\n"), 0o644))
	dst := filepath.Join(dir, "blocked.gz")
	require.NoError(t, os.Mkdir(dst, 0o755))

	assert.Error(t, compressFile(src, dst))
	_, err := os.Stat(src)
	assert.NoError(t, err)
}
