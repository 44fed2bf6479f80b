package apitest

import (
	"encoding/base64"
	"net/http"
	"path"
	"strings"
)

// Workspace object types.
const (
	wsTypeNotebook  = "NOTEBOOK"
	wsTypeDirectory = "DIRECTORY"
)

// Languages the import endpoint accepts.
var wsLanguages = map[string]bool{
	"PYTHON": true,
	"R":      true,
	"SQL":    true,
	"SCALA":  true,
}

type wsImportRequest struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite"`
}

type wsImportResponse struct {
	Path string `json:"path"`
}

// handleWorkspaceImport stores a notebook at the requested path. Missing
// parent directories are created implicitly, matching the platform. An
// existing object at the path is a conflict unless overwrite is set; a
// directory at the path conflicts regardless.
func (s *Server) handleWorkspaceImport(w http.ResponseWriter, r *http.Request) {
	var req wsImportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, ok := cleanAbsPath(w, req.Path)
	if !ok {
		return
	}
	if req.Format != "" && req.Format != "SOURCE" {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "unsupported format: "+req.Format)
		return
	}
	if !wsLanguages[req.Language] {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "unsupported language: "+req.Language)
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "content is not valid base64")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, found := s.workspace[p]; found {
		if existing.objectType == wsTypeDirectory {
			writeError(w, http.StatusConflict, codeAlreadyExists, "a directory exists at "+p)
			return
		}
		if !req.Overwrite {
			writeError(w, http.StatusConflict, codeAlreadyExists, "an object already exists at "+p)
			return
		}
		existing.content = content
		existing.language = req.Language
		existing.modifiedAt = nowMillis()
		writeJSON(w, http.StatusOK, wsImportResponse{Path: p})
		return
	}

	if !s.ensureWorkspaceParents(w, p) {
		return
	}

	s.nextObjectID++
	s.workspace[p] = &wsObject{
		objectType: wsTypeNotebook,
		objectID:   s.nextObjectID,
		language:   req.Language,
		content:    content,
		modifiedAt: nowMillis(),
	}
	writeJSON(w, http.StatusOK, wsImportResponse{Path: p})
}

type wsObjectResponse struct {
	Path       string `json:"path"`
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id,omitempty"`
	Language   string `json:"language,omitempty"`
	ModifiedAt int64  `json:"modified_at,omitempty"`
}

func (s *Server) handleWorkspaceGetStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := cleanAbsPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p == "/" {
		writeJSON(w, http.StatusOK, wsObjectResponse{Path: "/", ObjectType: wsTypeDirectory})
		return
	}

	obj, found := s.workspace[p]
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, "path does not exist: "+p)
		return
	}
	writeJSON(w, http.StatusOK, wsObjectResponse{
		Path:       p,
		ObjectType: obj.objectType,
		ObjectID:   obj.objectID,
		Language:   obj.language,
		ModifiedAt: obj.modifiedAt,
	})
}

type wsMkdirsRequest struct {
	Path string `json:"path"`
}

// handleWorkspaceMkdirs creates a directory and any missing parents.
// Existing directories are fine; a notebook anywhere on the path conflicts.
func (s *Server) handleWorkspaceMkdirs(w http.ResponseWriter, r *http.Request) {
	var req wsMkdirsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, ok := cleanAbsPath(w, req.Path)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p == "/" {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	if existing, found := s.workspace[p]; found && existing.objectType != wsTypeDirectory {
		writeError(w, http.StatusConflict, codeAlreadyExists, "an object already exists at "+p)
		return
	}
	if !s.ensureWorkspaceParents(w, p) {
		return
	}
	if _, found := s.workspace[p]; !found {
		s.nextObjectID++
		s.workspace[p] = &wsObject{
			objectType: wsTypeDirectory,
			objectID:   s.nextObjectID,
			modifiedAt: nowMillis(),
		}
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// ensureWorkspaceParents creates every missing ancestor of p as a directory.
// Answers the request and returns false when an ancestor exists as a
// notebook. Callers hold s.mu.
func (s *Server) ensureWorkspaceParents(w http.ResponseWriter, p string) bool {
	for _, dir := range ancestorsOf(p) {
		existing, found := s.workspace[dir]
		if found {
			if existing.objectType != wsTypeDirectory {
				writeError(w, http.StatusConflict, codeAlreadyExists, "an object already exists at "+dir)
				return false
			}
			continue
		}
		s.nextObjectID++
		s.workspace[dir] = &wsObject{
			objectType: wsTypeDirectory,
			objectID:   s.nextObjectID,
			modifiedAt: nowMillis(),
		}
	}
	return true
}

// cleanAbsPath validates and normalizes an absolute platform path, answering
// 400 when it is missing or relative.
func cleanAbsPath(w http.ResponseWriter, p string) (string, bool) {
	if p == "" {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "path is required")
		return "", false
	}
	if !strings.HasPrefix(p, "/") {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "path must be absolute: "+p)
		return "", false
	}
	return path.Clean(p), true
}

// ancestorsOf lists the proper ancestors of p from the root down, excluding
// "/" itself.
func ancestorsOf(p string) []string {
	var dirs []string
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		dirs = append(dirs, dir)
	}
	// Reverse so parents are created top-down.
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}
	return dirs
}
