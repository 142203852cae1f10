package results

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/crcsearch/internal/wire"
)

func twoMatches() *Store {
	s := NewStore()
	s.Append(wire.Match{Checksum: 0xC8A106E5, Candidate: []byte("Hello, world!"), Elapsed: 1234, Source: 0})
	s.Append(wire.Match{Checksum: 0x86A072C0, Candidate: []byte("test"), Elapsed: 5678, Source: 2})
	return s
}

const twoMatchLog = "Hash\tString\tTime (ns)\n0xc8a106e5\tHello, world!\t1234\n0x86a072c0\ttest\t5678\n"

func TestWriteTo(t *testing.T) {
	var buf bytes.Buffer
	n, err := twoMatches().WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, twoMatchLog, buf.String())
	assert.Equal(t, int64(len(twoMatchLog)), n)
}

func TestWriteToEmpty(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewStore().WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, Header, buf.String())
}

func TestDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale contents that are longer than the new log\n"), 0o644))

	require.NoError(t, twoMatches().Dump(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, twoMatchLog, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestDumpMissingDirectory(t *testing.T) {
	err := twoMatches().Dump(filepath.Join(t.TempDir(), "missing", "results.txt"))
	assert.Error(t, err)
}

func TestStoreOrderAndStats(t *testing.T) {
	s := twoMatches()
	assert.Equal(t, 2, s.Len())

	got := s.Matches()
	assert.Equal(t, "Hello, world!", string(got[0].Candidate))
	assert.Equal(t, "test", string(got[1].Candidate))

	// copies do not alias the store
	got[0].Candidate[0] = 'J'
	assert.Equal(t, "Hello, world!", string(s.Matches()[0].Candidate))

	stats := s.Stats()
	assert.Equal(t, 2, stats.Matches)
	assert.Equal(t, 17, stats.Bytes)
	assert.Equal(t, map[int]int{0: 1, 2: 1}, stats.Sources)
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Stats()
				_, _ = s.WriteTo(&bytes.Buffer{})
			}
		}()
	}
	for i := 0; i < 100; i++ {
		s.Append(wire.Match{Candidate: []byte{byte('a' + i%26)}})
	}
	wg.Wait()
	assert.Equal(t, 100, s.Len())
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	twoMatches().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, MatchView{Hash: "0xc8a106e5", Candidate: "Hello, world!", ElapsedNs: 1234, Source: 0}, out.Matches[0])
	assert.Equal(t, 2, out.Matches[1].Source)
	assert.Equal(t, StoreStats{Matches: 2, Bytes: 17, Sources: map[int]int{0: 1, 2: 1}}, out.Stats)

	rec = httptest.NewRecorder()
	NewStore().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/results", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
