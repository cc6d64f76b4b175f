package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wesm/snapvault/internal/session"
)

// ImportStatus reports the latest import started over the API.
type ImportStatus struct {
	Running   bool             `json:"running"`
	Path      string           `json:"path,omitempty"`
	Progress  session.Progress `json:"progress"`
	SessionID string           `json:"session_id,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (s *Server) importStatus() ImportStatus {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	return s.imp
}

// handleImportStatus returns the state of the latest API import.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.importStatus())
}

// handleStartImport starts importing the archive named in the body. The
// current state keeps serving until the import succeeds.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil || strings.TrimSpace(body.Path) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "Body must be {\"path\": \"/path/to/mydata.zip\"}")
		return
	}

	s.importMu.Lock()
	if s.imp.Running {
		s.importMu.Unlock()
		writeError(w, http.StatusConflict, "import_running", "An import is already running")
		return
	}
	s.imp = ImportStatus{Running: true, Path: body.Path}
	s.importMu.Unlock()

	job := s.sess.Start(s.base, body.Path)
	go s.watchImport(job)

	s.logger.Info("import started via API", "path", body.Path)
	writeJSON(w, http.StatusAccepted, s.importStatus())
}

func (s *Server) watchImport(job *session.Job) {
	for p := range job.Progress() {
		s.importMu.Lock()
		s.imp.Progress = p
		s.importMu.Unlock()
	}
	st, err := job.Wait()

	s.importMu.Lock()
	defer s.importMu.Unlock()
	s.imp.Running = false
	if err != nil {
		s.imp.Error = err.Error()
		s.logger.Warn("import failed", "path", s.imp.Path, "error", err)
		return
	}
	s.imp.SessionID = st.ID
}
