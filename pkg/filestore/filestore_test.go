package filestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostratus/pkg/credentials"
	"github.com/3leaps/gostratus/pkg/platform"
)

func testService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cred, err := credentials.New(server.URL, "tok-1")
	require.NoError(t, err)
	client, err := platform.NewClient(cred, platform.Options{})
	require.NoError(t, err)
	return New(client, nil)
}

func TestPut(t *testing.T) {
	var got putRequest
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathPut, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	}))

	err := svc.Put(context.Background(), "/mnt/course/init.sh", strings.NewReader("#!/bin/sh\n"), PutOptions{})
	require.NoError(t, err)

	assert.Equal(t, "/mnt/course/init.sh", got.Path)
	assert.False(t, got.Overwrite)

	decoded, err := base64.StdEncoding.DecodeString(got.Contents)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(decoded))
}

func TestPut_TooLargeNeverTouchesNetwork(t *testing.T) {
	var calls atomic.Int64
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	big := bytes.Repeat([]byte("x"), MaxPutBytes+1)
	err := svc.Put(context.Background(), "/mnt/big", bytes.NewReader(big), PutOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single-request limit")
	assert.Equal(t, int64(0), calls.Load())
}

func TestPut_Conflict(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code": "RESOURCE_ALREADY_EXISTS", "message": "exists"}`))
	}))

	err := svc.Put(context.Background(), "/mnt/course/init.sh", strings.NewReader("x"), PutOptions{})
	require.Error(t, err)
	assert.True(t, platform.IsConflict(err))
}

func TestOpen_StreamsChunks(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	const serverChunk = 10

	var requests atomic.Int64
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathRead, r.URL.Path)
		requests.Add(1)

		offset, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
		require.NoError(t, err)

		// Serve less than the requested length: readers must not treat
		// short reads as end of file.
		end := offset + serverChunk
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		var chunk []byte
		if offset < int64(len(content)) {
			chunk = content[offset:end]
		}

		resp := readResponse{
			BytesRead: int64(len(chunk)),
			Data:      base64.StdEncoding.EncodeToString(chunk),
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))

	r := svc.Open(context.Background(), "/mnt/course/data.csv")
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, content, got)
	// ceil(44/10) data chunks plus the final zero-byte read.
	assert.Equal(t, int64(6), requests.Load())
}

func TestOpen_EmptyFile(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bytes_read": 0, "data": ""}`))
	}))

	got, err := io.ReadAll(svc.Open(context.Background(), "/mnt/empty"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpen_MissingFile(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "no such file"}`))
	}))

	_, err := io.ReadAll(svc.Open(context.Background(), "/mnt/missing"))
	require.Error(t, err)
	assert.True(t, platform.IsNotFound(err))
}

func TestStat(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathGetStatus, r.URL.Path)
		assert.Equal(t, "/mnt/course", r.URL.Query().Get("path"))
		_, _ = w.Write([]byte(`{"path": "/mnt/course", "is_dir": true, "file_size": 0}`))
	}))

	entry, err := svc.Stat(context.Background(), "/mnt/course")
	require.NoError(t, err)
	assert.True(t, entry.IsDir)
	assert.Equal(t, "/mnt/course", entry.Path)
}

func TestDelete(t *testing.T) {
	var got deleteRequest
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathDelete, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	}))

	require.NoError(t, svc.Delete(context.Background(), "/mnt/course", true))
	assert.Equal(t, "/mnt/course", got.Path)
	assert.True(t, got.Recursive)
}

func TestDelete_MissingPathSurfaces(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "missing"}`))
	}))

	err := svc.Delete(context.Background(), "/mnt/missing", false)
	require.Error(t, err)
	assert.True(t, platform.IsNotFound(err))
}

func TestMkdirs(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathMkdirs, r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, fmt.Sprintf(`{"path": %q}`, "/mnt/course/data"), string(body))
		_, _ = w.Write([]byte(`{}`))
	}))

	require.NoError(t, svc.Mkdirs(context.Background(), "/mnt/course/data"))
}
