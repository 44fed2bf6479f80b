// Package apitest runs an in-process fake of the platform REST API for
// integration-style tests.
//
// The fake keeps workspace objects, file store entries, jobs, and runs in
// memory and speaks the platform's wire contract: bearer auth on every
// endpoint, JSON error bodies with error_code and message, token-based
// pagination on list endpoints. Client packages can be exercised end to end
// against it without network access or real credentials.
//
// Usage:
//
//	srv := apitest.New(t)
//	cred, _ := credentials.New(srv.URL(), apitest.TestToken)
//	client, _ := platform.NewClient(cred, platform.Options{})
//	// ... drive workspace/jobs/filestore services against the fake ...
//
// State is guarded by one mutex and handlers hold it for the whole request,
// so the fake serializes. That is fine at test scale and keeps handlers
// simple.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// TestToken is the bearer token the fake accepts.
const TestToken = "dapi-apitest-0000"

// Error codes returned in failure bodies, mirroring the platform's.
const (
	codeInvalidParameter  = "INVALID_PARAMETER_VALUE"
	codeNotFound          = "RESOURCE_DOES_NOT_EXIST"
	codeAlreadyExists     = "RESOURCE_ALREADY_EXISTS"
	codeUnauthenticated   = "UNAUTHENTICATED"
	codeEndpointNotFound  = "ENDPOINT_NOT_FOUND"
	codeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	codeDirectoryNotEmpty = "DIRECTORY_NOT_EMPTY"
)

// Run states as the platform reports them.
const (
	runQueued    = "queued"
	runRunning   = "running"
	runSucceeded = "succeeded"
	runFailed    = "failed"
	runCancelled = "cancelled"
)

// Server is the in-memory platform fake. Construct with New.
type Server struct {
	mu sync.Mutex

	workspace map[string]*wsObject
	files     map[string]*fsEntry
	jobs      map[int64]*jobRecord
	jobOrder  []int64
	runs      map[int64]*runRecord
	runOrder  []int64
	idem      map[string]int64

	nextObjectID int64
	nextJobID    int64
	nextRunID    int64

	injected []injectedError

	http *httptest.Server
}

type wsObject struct {
	objectType string
	objectID   int64
	language   string
	content    []byte
	modifiedAt int64
}

type fsEntry struct {
	isDir   bool
	content []byte
	modTime int64
}

type jobRecord struct {
	id       int64
	name     string
	settings json.RawMessage
	created  int64
}

type runRecord struct {
	id        int64
	jobID     int64
	state     string
	params    map[string]string
	startTime int64
	endTime   int64
}

type injectedError struct {
	status  int
	code    string
	message string
}

// New starts a fake platform server and registers its shutdown with t.
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		workspace:    make(map[string]*wsObject),
		files:        make(map[string]*fsEntry),
		jobs:         make(map[int64]*jobRecord),
		runs:         make(map[int64]*runRecord),
		idem:         make(map[string]int64),
		nextObjectID: 100,
		nextJobID:    1000,
		nextRunID:    5000,
	}

	s.http = httptest.NewServer(s.router())
	t.Cleanup(s.http.Close)
	return s
}

// URL returns the fake's base URL, suitable as a workspace host.
func (s *Server) URL() string {
	return s.http.URL
}

// FailNext makes the next request fail with the given status and error body,
// regardless of endpoint. Calls queue: each injected failure is consumed by
// exactly one request, in arrival order, before auth runs.
func (s *Server) FailNext(status int, code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, injectedError{status: status, code: code, message: message})
}

// Reset drops all stored state. Id counters keep advancing so ids stay
// unique across a Reset.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspace = make(map[string]*wsObject)
	s.files = make(map[string]*fsEntry)
	s.jobs = make(map[int64]*jobRecord)
	s.jobOrder = nil
	s.runs = make(map[int64]*runRecord)
	s.runOrder = nil
	s.idem = make(map[string]int64)
	s.injected = nil
}

// WorkspaceObjectInfo is a snapshot of one stored workspace object.
type WorkspaceObjectInfo struct {
	Path       string
	ObjectType string
	Language   string
	ObjectID   int64
}

// WorkspaceObject returns a snapshot of the object at path.
func (s *Server) WorkspaceObject(path string) (WorkspaceObjectInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.workspace[path]
	if !ok {
		return WorkspaceObjectInfo{}, false
	}
	return WorkspaceObjectInfo{
		Path:       path,
		ObjectType: obj.objectType,
		Language:   obj.language,
		ObjectID:   obj.objectID,
	}, true
}

// WorkspaceContent returns the stored content of the object at path.
func (s *Server) WorkspaceContent(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.workspace[path]
	if !ok || obj.objectType == wsTypeDirectory {
		return nil, false
	}
	return append([]byte(nil), obj.content...), true
}

// FileContent returns the stored content of the file store entry at path.
func (s *Server) FileContent(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.files[path]
	if !ok || entry.isDir {
		return nil, false
	}
	return append([]byte(nil), entry.content...), true
}

// JobCount returns the number of jobs currently stored.
func (s *Server) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RunState returns the current state of a run.
func (s *Server) RunState(runID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return "", false
	}
	return run.state, true
}

// SetRunState moves a run to the given state, stamping start and end times
// the way the platform would. Tests drive run lifecycles with this; the
// fake never advances runs on its own.
func (s *Server) SetRunState(runID int64, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return
	}
	now := nowMillis()
	run.state = state
	switch state {
	case runRunning:
		if run.startTime == 0 {
			run.startTime = now
		}
	case runSucceeded, runFailed, runCancelled:
		if run.startTime == 0 {
			run.startTime = now
		}
		run.endTime = now
	}
}

// router builds the chi handler tree.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(echoRequestID)
	r.Use(s.failInjected)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, codeEndpointNotFound, "no such API endpoint: "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, req.Method+" is not supported here")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/2.0/workspace", func(r chi.Router) {
			r.Post("/import", s.handleWorkspaceImport)
			r.Get("/get-status", s.handleWorkspaceGetStatus)
			r.Post("/mkdirs", s.handleWorkspaceMkdirs)
		})

		r.Route("/2.1/jobs", func(r chi.Router) {
			r.Post("/create", s.handleJobsCreate)
			r.Get("/get", s.handleJobsGet)
			r.Post("/reset", s.handleJobsReset)
			r.Post("/delete", s.handleJobsDelete)
			r.Get("/list", s.handleJobsList)
			r.Post("/run-now", s.handleRunNow)
			r.Get("/runs/get", s.handleRunsGet)
			r.Get("/runs/list", s.handleRunsList)
		})

		r.Route("/2.0/fs", func(r chi.Router) {
			r.Post("/put", s.handleFSPut)
			r.Get("/read", s.handleFSRead)
			r.Get("/get-status", s.handleFSGetStatus)
			r.Post("/delete", s.handleFSDelete)
			r.Post("/mkdirs", s.handleFSMkdirs)
		})
	})

	return r
}

// requireAuth rejects requests without the expected bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+TestToken {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// failInjected consumes one queued injected failure, if any.
func (s *Server) failInjected(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		if len(s.injected) > 0 {
			inj := s.injected[0]
			s.injected = s.injected[1:]
			s.mu.Unlock()
			writeError(w, inj.status, inj.code, inj.message)
			return
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// echoRequestID reflects the client's correlation id back, as the platform
// does.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-Id"); id != "" {
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{ErrorCode: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody unmarshals the request body into v, answering 400 on malformed
// JSON. Returns false when the request has already been answered.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
