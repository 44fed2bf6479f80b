package apitest

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
)

type fsPutRequest struct {
	Path      string `json:"path"`
	Contents  string `json:"contents"`
	Overwrite bool   `json:"overwrite"`
}

// handleFSPut stores a file. Parent directories are created implicitly. An
// existing file is a conflict unless overwrite is set; a directory at the
// path conflicts regardless.
func (s *Server) handleFSPut(w http.ResponseWriter, r *http.Request) {
	var req fsPutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, ok := cleanAbsPath(w, req.Path)
	if !ok {
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Contents)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "contents is not valid base64")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, found := s.files[p]; found {
		if existing.isDir {
			writeError(w, http.StatusConflict, codeAlreadyExists, "a directory exists at "+p)
			return
		}
		if !req.Overwrite {
			writeError(w, http.StatusConflict, codeAlreadyExists, "a file already exists at "+p)
			return
		}
		existing.content = content
		existing.modTime = nowMillis()
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	if !s.ensureFileParents(w, p) {
		return
	}
	s.files[p] = &fsEntry{content: content, modTime: nowMillis()}
	writeJSON(w, http.StatusOK, struct{}{})
}

type fsReadResponse struct {
	BytesRead int64  `json:"bytes_read"`
	Data      string `json:"data"`
}

// handleFSRead returns a base64 chunk of a file. Reads at or past the end
// return zero bytes, which the client takes as end of file.
func (s *Server) handleFSRead(w http.ResponseWriter, r *http.Request) {
	p, ok := cleanAbsPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	offset, length := int64(0), int64(-1)
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid offset: "+raw)
			return
		}
		offset = v
	}
	if raw := r.URL.Query().Get("length"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid length: "+raw)
			return
		}
		length = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.files[p]
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, "path does not exist: "+p)
		return
	}
	if entry.isDir {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "cannot read a directory: "+p)
		return
	}

	size := int64(len(entry.content))
	if offset >= size {
		writeJSON(w, http.StatusOK, fsReadResponse{BytesRead: 0, Data: ""})
		return
	}
	end := size
	if length >= 0 && offset+length < size {
		end = offset + length
	}
	chunk := entry.content[offset:end]
	writeJSON(w, http.StatusOK, fsReadResponse{
		BytesRead: int64(len(chunk)),
		Data:      base64.StdEncoding.EncodeToString(chunk),
	})
}

type fsStatusResponse struct {
	Path             string `json:"path"`
	IsDir            bool   `json:"is_dir"`
	Size             int64  `json:"file_size"`
	ModificationTime int64  `json:"modification_time,omitempty"`
}

func (s *Server) handleFSGetStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := cleanAbsPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p == "/" {
		writeJSON(w, http.StatusOK, fsStatusResponse{Path: "/", IsDir: true})
		return
	}
	entry, found := s.files[p]
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, "path does not exist: "+p)
		return
	}
	resp := fsStatusResponse{Path: p, IsDir: entry.isDir, ModificationTime: entry.modTime}
	if !entry.isDir {
		resp.Size = int64(len(entry.content))
	}
	writeJSON(w, http.StatusOK, resp)
}

type fsDeleteRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// handleFSDelete removes a file, or a directory tree when recursive is set.
// Deleting a non-empty directory without recursive fails.
func (s *Server) handleFSDelete(w http.ResponseWriter, r *http.Request) {
	var req fsDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, ok := cleanAbsPath(w, req.Path)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.files[p]
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, "path does not exist: "+p)
		return
	}

	if entry.isDir {
		hasChildren := false
		for key := range s.files {
			if strings.HasPrefix(key, p+"/") {
				hasChildren = true
				break
			}
		}
		if hasChildren && !req.Recursive {
			writeError(w, http.StatusBadRequest, codeDirectoryNotEmpty, "directory is not empty: "+p)
			return
		}
		for key := range s.files {
			if strings.HasPrefix(key, p+"/") {
				delete(s.files, key)
			}
		}
	}
	delete(s.files, p)
	writeJSON(w, http.StatusOK, struct{}{})
}

type fsMkdirsRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleFSMkdirs(w http.ResponseWriter, r *http.Request) {
	var req fsMkdirsRequest
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
	if existing, found := s.files[p]; found && !existing.isDir {
		writeError(w, http.StatusConflict, codeAlreadyExists, "a file already exists at "+p)
		return
	}
	if !s.ensureFileParents(w, p) {
		return
	}
	if _, found := s.files[p]; !found {
		s.files[p] = &fsEntry{isDir: true, modTime: nowMillis()}
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// ensureFileParents creates every missing ancestor of p as a directory.
// Answers the request and returns false when an ancestor exists as a file.
// Callers hold s.mu.
func (s *Server) ensureFileParents(w http.ResponseWriter, p string) bool {
	for _, dir := range ancestorsOf(p) {
		existing, found := s.files[dir]
		if found {
			if !existing.isDir {
				writeError(w, http.StatusConflict, codeAlreadyExists, "a file already exists at "+dir)
				return false
			}
			continue
		}
		s.files[dir] = &fsEntry{isDir: true, modTime: nowMillis()}
	}
	return true
}
