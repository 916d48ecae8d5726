package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sarchange/internal/monitoring"
	"github.com/banshee-data/sarchange/internal/sar/storage/sqlite"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func httpGet(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestServe(t *testing.T) {
	dir := t.TempDir()
	stack := writeStack(t, dir)
	dbPath := filepath.Join(dir, "runs.db")

	out, err := execute(t, "detect", stack, "--db", dbPath, "--alpha", "0.01", "--correction", "bonferroni")
	require.NoError(t, err)
	var res detectResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--quiet", "serve", "--db", dbPath, "--listen", addr})
	errc := make(chan error, 1)
	go func() { errc <- cmd.ExecuteContext(ctx) }()

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	status, body := httpGet(t, base+"/api/runs")
	assert.Equal(t, http.StatusOK, status)
	var runs []sqlite.Run
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].RunID)
	assert.Equal(t, res.Products.Changed, runs[0].Summary.Changed)
	assert.Equal(t, res.Products.Invalid, runs[0].Summary.Invalid)

	status, body = httpGet(t, base+"/api/runs/"+res.RunID+"/heatmap.png?raster=index")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "\x89PNG", string(body[:4]))

	status, body = httpGet(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
