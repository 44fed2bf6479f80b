package workspace

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostratus/pkg/credentials"
	"github.com/3leaps/gostratus/pkg/platform"
)

func TestInferLanguage(t *testing.T) {
	tests := []struct {
		path    string
		want    Language
		wantErr bool
	}{
		{path: "etl.py", want: LanguagePython},
		{path: "analysis.r", want: LanguageR},
		{path: "analysis.R", want: LanguageR},
		{path: "report.sql", want: LanguageSQL},
		{path: "pipeline.scala", want: LanguageScala},
		{path: "/tmp/nested/dir/script.R", want: LanguageR},
		{path: "notes.txt", wantErr: true},
		{path: "Makefile", wantErr: true},
		{path: "archive.tar.gz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			lang, err := InferLanguage(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownLanguage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, lang)
		})
	}
}

// testService wires a Service against an httptest handler.
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

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func notFoundResponse(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "missing"}`))
}

func TestImport(t *testing.T) {
	var gotImport importRequest
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathGetStatus:
			notFoundResponse(w)
		case pathImport:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotImport))
			_, _ = w.Write([]byte(`{"path": "/Users/u/script"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	local := writeScript(t, "script.R", "print('hello')\n")
	obj, err := svc.Import(context.Background(), local, "/Users/u/script.R", ImportOptions{})
	require.NoError(t, err)

	// Canonical path comes from the server, not the request.
	assert.Equal(t, "/Users/u/script", obj.Path)
	assert.Equal(t, LanguageR, obj.Language)
	assert.Equal(t, ObjectNotebook, obj.ObjectType)

	assert.Equal(t, "/Users/u/script.R", gotImport.Path)
	assert.Equal(t, formatSource, gotImport.Format)
	assert.Equal(t, LanguageR, gotImport.Language)
	assert.False(t, gotImport.Overwrite)

	decoded, err := base64.StdEncoding.DecodeString(gotImport.Content)
	require.NoError(t, err)
	assert.Equal(t, "print('hello')\n", string(decoded))
}

func TestImport_ConflictWithoutOverwrite(t *testing.T) {
	var imports atomic.Int64
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathGetStatus:
			_, _ = w.Write([]byte(`{"path": "/Users/u/script", "object_type": "NOTEBOOK", "object_id": 7}`))
		case pathImport:
			imports.Add(1)
			_, _ = w.Write([]byte(`{}`))
		}
	}))

	local := writeScript(t, "script.R", "x <- 1\n")
	_, err := svc.Import(context.Background(), local, "/Users/u/script", ImportOptions{})
	require.Error(t, err)
	assert.True(t, platform.IsConflict(err))
	assert.Equal(t, int64(0), imports.Load(), "conflicting import must not touch the remote object")
}

func TestImport_OverwriteSkipsPrecheck(t *testing.T) {
	var stats, imports atomic.Int64
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathGetStatus:
			stats.Add(1)
			_, _ = w.Write([]byte(`{"path": "/Users/u/script", "object_type": "NOTEBOOK"}`))
		case pathImport:
			imports.Add(1)
			_, _ = w.Write([]byte(`{"path": "/Users/u/script"}`))
		}
	}))

	local := writeScript(t, "script.py", "print(1)\n")
	obj, err := svc.Import(context.Background(), local, "/Users/u/script", ImportOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "/Users/u/script", obj.Path)
	assert.Equal(t, int64(0), stats.Load())
	assert.Equal(t, int64(1), imports.Load())
}

func TestImport_LostRaceStillConflicts(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathGetStatus:
			notFoundResponse(w)
		case pathImport:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_code": "RESOURCE_ALREADY_EXISTS", "message": "created concurrently"}`))
		}
	}))

	local := writeScript(t, "script.sql", "SELECT 1;\n")
	_, err := svc.Import(context.Background(), local, "/Users/u/script", ImportOptions{})
	require.Error(t, err)
	assert.True(t, platform.IsConflict(err))
}

func TestImport_UnknownExtensionNeverTouchesNetwork(t *testing.T) {
	var calls atomic.Int64
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	local := writeScript(t, "notes.txt", "not source\n")
	_, err := svc.Import(context.Background(), local, "/Users/u/notes", ImportOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownLanguage)
	assert.Equal(t, int64(0), calls.Load())
}

func TestImport_ExplicitLanguageOverridesExtension(t *testing.T) {
	var gotImport importRequest
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathGetStatus:
			notFoundResponse(w)
		case pathImport:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotImport))
			_, _ = w.Write([]byte(`{}`))
		}
	}))

	local := writeScript(t, "notes.txt", "SELECT 1;\n")
	obj, err := svc.Import(context.Background(), local, "/Users/u/adhoc", ImportOptions{Language: LanguageSQL})
	require.NoError(t, err)
	assert.Equal(t, LanguageSQL, gotImport.Language)
	// No path in the response falls back to the requested path.
	assert.Equal(t, "/Users/u/adhoc", obj.Path)
}

func TestImportBytes_RequiresLanguage(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	_, err := svc.ImportBytes(context.Background(), []byte("x"), "/Users/u/x", ImportOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestStat_NotFound(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Users/u/missing", r.URL.Query().Get("path"))
		notFoundResponse(w)
	}))

	_, err := svc.Stat(context.Background(), "/Users/u/missing")
	require.Error(t, err)
	assert.True(t, platform.IsNotFound(err))
}

func TestMkdirs(t *testing.T) {
	var gotPath string
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathMkdirs, r.URL.Path)
		var req struct {
			Path string `json:"path"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPath = req.Path
		_, _ = w.Write([]byte(`{}`))
	}))

	require.NoError(t, svc.Mkdirs(context.Background(), "/Users/u/course"))
	assert.Equal(t, "/Users/u/course", gotPath)
}
