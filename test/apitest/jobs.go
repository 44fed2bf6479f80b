package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// List page bounds enforced by the fake, matching the platform's limits.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// settingsProbe pulls the fields the fake validates out of an otherwise
// opaque settings document.
type settingsProbe struct {
	Name string `json:"name"`
}

type jobResponse struct {
	JobID     int64           `json:"job_id"`
	Settings  json.RawMessage `json:"settings"`
	CreatedAt int64           `json:"created_time,omitempty"`
}

// handleJobsCreate registers a job. The settings document is stored verbatim
// and echoed back by get and list; only the name is validated.
func (s *Server) handleJobsCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "unreadable request body")
		return
	}

	var probe settingsProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "malformed request body: "+err.Error())
		return
	}
	if probe.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "job name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	id := s.nextJobID
	s.jobs[id] = &jobRecord{
		id:       id,
		name:     probe.Name,
		settings: json.RawMessage(body),
		created:  nowMillis(),
	}
	s.jobOrder = append(s.jobOrder, id)

	writeJSON(w, http.StatusOK, struct {
		JobID int64 `json:"job_id"`
	}{JobID: id})
}

func (s *Server) handleJobsGet(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt64(w, r, "job_id")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, found := s.jobs[id]
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("job %d does not exist", id))
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{
		JobID:     job.id,
		Settings:  job.settings,
		CreatedAt: job.created,
	})
}

type jobsResetRequest struct {
	JobID       int64           `json:"job_id"`
	NewSettings json.RawMessage `json:"new_settings"`
}

// handleJobsReset replaces a job's settings wholesale.
func (s *Server) handleJobsReset(w http.ResponseWriter, r *http.Request) {
	var req jobsResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.NewSettings) == 0 {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "new_settings is required")
		return
	}
	var probe settingsProbe
	if err := json.Unmarshal(req.NewSettings, &probe); err != nil || probe.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "new_settings must carry a job name")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, found := s.jobs[req.JobID]
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("job %d does not exist", req.JobID))
		return
	}
	job.settings = req.NewSettings
	job.name = probe.Name
	writeJSON(w, http.StatusOK, struct{}{})
}

type jobsDeleteRequest struct {
	JobID int64 `json:"job_id"`
}

// handleJobsDelete removes a job. Run history is kept, as on the platform.
func (s *Server) handleJobsDelete(w http.ResponseWriter, r *http.Request) {
	var req jobsDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.jobs[req.JobID]; !found {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("job %d does not exist", req.JobID))
		return
	}
	delete(s.jobs, req.JobID)
	for i, id := range s.jobOrder {
		if id == req.JobID {
			s.jobOrder = append(s.jobOrder[:i], s.jobOrder[i+1:]...)
			break
		}
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type jobsListResponse struct {
	Jobs          []jobResponse `json:"jobs"`
	HasMore       bool          `json:"has_more"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// handleJobsList pages through jobs in creation order. The page token names
// the job id the previous page ended at, so pages stay stable when jobs are
// deleted between requests.
func (s *Server) handleJobsList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	token, hasToken, ok := queryPageToken(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.jobOrder
	start := 0
	if hasToken {
		start = startAfter(ids, token, false)
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}

	resp := jobsListResponse{Jobs: make([]jobResponse, 0, end-start)}
	for _, id := range ids[start:end] {
		job := s.jobs[id]
		resp.Jobs = append(resp.Jobs, jobResponse{
			JobID:     job.id,
			Settings:  job.settings,
			CreatedAt: job.created,
		})
	}
	if end < len(ids) {
		resp.HasMore = true
		resp.NextPageToken = strconv.FormatInt(ids[end-1], 10)
	}
	writeJSON(w, http.StatusOK, resp)
}

type runNowRequest struct {
	JobID            int64             `json:"job_id"`
	Parameters       map[string]string `json:"parameters"`
	IdempotencyToken string            `json:"idempotency_token"`
}

// handleRunNow queues a run. A previously seen idempotency token returns the
// run it already started instead of starting another.
func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	var req runNowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.jobs[req.JobID]; !found {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("job %d does not exist", req.JobID))
		return
	}

	if req.IdempotencyToken != "" {
		if existing, seen := s.idem[req.IdempotencyToken]; seen {
			writeJSON(w, http.StatusOK, struct {
				RunID int64 `json:"run_id"`
			}{RunID: existing})
			return
		}
	}

	s.nextRunID++
	id := s.nextRunID
	s.runs[id] = &runRecord{
		id:     id,
		jobID:  req.JobID,
		state:  runQueued,
		params: req.Parameters,
	}
	s.runOrder = append(s.runOrder, id)
	if req.IdempotencyToken != "" {
		s.idem[req.IdempotencyToken] = id
	}

	writeJSON(w, http.StatusOK, struct {
		RunID int64 `json:"run_id"`
	}{RunID: id})
}

type runResponse struct {
	RunID      int64  `json:"run_id"`
	JobID      int64  `json:"job_id"`
	State      string `json:"state"`
	RunPageURL string `json:"run_page_url,omitempty"`
	StartTime  int64  `json:"start_time,omitempty"`
	EndTime    int64  `json:"end_time,omitempty"`
}

func (s *Server) handleRunsGet(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt64(w, r, "run_id")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, found := s.runs[id]
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("run %d does not exist", id))
		return
	}
	writeJSON(w, http.StatusOK, s.runResponseOf(run))
}

type runsListResponse struct {
	Runs          []runResponse `json:"runs"`
	HasMore       bool          `json:"has_more"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// handleRunsList pages through runs, most recent first, optionally filtered
// to one job.
func (s *Server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	token, hasToken, ok := queryPageToken(w, r)
	if !ok {
		return
	}
	var jobID int64
	if r.URL.Query().Get("job_id") != "" {
		jobID, ok = queryInt64(w, r, "job_id")
		if !ok {
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first; run ids ascend with creation.
	ids := make([]int64, 0, len(s.runOrder))
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		id := s.runOrder[i]
		if jobID != 0 && s.runs[id].jobID != jobID {
			continue
		}
		ids = append(ids, id)
	}

	start := 0
	if hasToken {
		start = startAfter(ids, token, true)
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}

	resp := runsListResponse{Runs: make([]runResponse, 0, end-start)}
	for _, id := range ids[start:end] {
		resp.Runs = append(resp.Runs, s.runResponseOf(s.runs[id]))
	}
	if end < len(ids) {
		resp.HasMore = true
		resp.NextPageToken = strconv.FormatInt(ids[end-1], 10)
	}
	writeJSON(w, http.StatusOK, resp)
}

// runResponseOf renders a run the way the platform reports it. Callers hold
// s.mu.
func (s *Server) runResponseOf(run *runRecord) runResponse {
	return runResponse{
		RunID:      run.id,
		JobID:      run.jobID,
		State:      run.state,
		RunPageURL: fmt.Sprintf("%s/#job/%d/run/%d", s.http.URL, run.jobID, run.id),
		StartTime:  run.startTime,
		EndTime:    run.endTime,
	}
}

// queryInt64 parses a required int64 query parameter, answering 400 when it
// is missing or malformed.
func queryInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, name+" is required")
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid "+name+": "+raw)
		return 0, false
	}
	return v, true
}

// queryLimit parses the limit parameter, enforcing the platform's 1..100
// range. Absent means the default page size.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > maxListLimit {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "limit must be between 1 and 100")
		return 0, false
	}
	return v, true
}

// queryPageToken parses the optional page_token parameter.
func queryPageToken(w http.ResponseWriter, r *http.Request) (int64, bool, bool) {
	raw := r.URL.Query().Get("page_token")
	if raw == "" {
		return 0, false, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid page_token: "+raw)
		return 0, false, false
	}
	return v, true, true
}

// startAfter finds where a page resumes: the first position whose id comes
// after tok in the listing order. Descending listings order ids high to low.
func startAfter(ids []int64, tok int64, descending bool) int {
	for i, id := range ids {
		if descending {
			if id < tok {
				return i
			}
		} else if id > tok {
			return i
		}
	}
	return len(ids)
}
