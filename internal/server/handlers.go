package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/schaermu/modshell/internal/metadata"
	"github.com/schaermu/modshell/internal/rclone"
)

const maxBodySize = 1 << 20 // 1 MB

// MetadataRequest asks for the metadata of a batch of files
type MetadataRequest struct {
	Paths         []string `json:"paths"`
	IgnoreModTime bool     `json:"ignore_modtime"`
}

// UnpackRequest asks to extract an archive
type UnpackRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ListenerID  string `json:"listener_id"`
}

// PackRequest asks to build an archive from a directory
type PackRequest struct {
	SourceDir      string `json:"source_dir"`
	Name           string `json:"name"`
	DestinationDir string `json:"destination_dir"`
	ListenerID     string `json:"listener_id"`
}

// SyncResponse reports the verdict of a sync
type SyncResponse struct {
	Success    bool   `json:"success"`
	ListenerID string `json:"listener_id"`
}

// ListenerResponse tells the caller which event name to follow
type ListenerResponse struct {
	ListenerID string `json:"listener_id"`
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	var req MetadataRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.cacheMu.Lock()
	records, err := s.deps.Cache.GetMetadata(req.Paths, req.IgnoreModTime)
	s.cacheMu.Unlock()
	if err != nil {
		s.logger.Error("failed to get file metadata", "error", err)
		http.Error(w, "Failed to get file metadata", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []metadata.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleClearMetadata(w http.ResponseWriter, r *http.Request) {
	s.cacheMu.Lock()
	err := s.deps.Cache.Clear()
	s.cacheMu.Unlock()
	if err != nil {
		s.logger.Error("failed to clear metadata cache", "error", err)
		http.Error(w, "Failed to clear metadata cache", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModifiedEpoch(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "Missing path", http.StatusBadRequest)
		return
	}

	epoch, err := metadata.ModifiedEpoch(path)
	if errors.Is(err, metadata.ErrNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to read modification time", "path", path, "error", err)
		http.Error(w, "Failed to read modification time", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"epoch": epoch})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req rclone.Request
	if !s.decode(w, r, &req) {
		return
	}
	if req.Command == "" || req.RemotePath == "" || req.TargetPath == "" {
		http.Error(w, "command, remote_path and target_path are required", http.StatusBadRequest)
		return
	}
	req.ListenerID = listenerID(req.ListenerID)

	success, err := s.deps.Syncer.Run(r.Context(), req)
	if err != nil {
		s.logger.Error("sync failed", "listener_id", req.ListenerID, "error", err)
		http.Error(w, "Sync failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Success: success, ListenerID: req.ListenerID})
}

func (s *Server) handleUnpack(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archiver == nil {
		http.Error(w, "Archive tool not available on this system", http.StatusNotImplemented)
		return
	}
	var req UnpackRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.ListenerID = listenerID(req.ListenerID)

	if err := s.deps.Archiver.Unpack(r.Context(), req.Source, req.Destination, req.ListenerID); err != nil {
		s.logger.Error("unpack failed", "source", req.Source, "error", err)
		http.Error(w, "Unpack failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListenerResponse{ListenerID: req.ListenerID})
}

func (s *Server) handlePack(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archiver == nil {
		http.Error(w, "Archive tool not available on this system", http.StatusNotImplemented)
		return
	}
	var req PackRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.ListenerID = listenerID(req.ListenerID)

	if err := s.deps.Archiver.Pack(r.Context(), req.SourceDir, req.Name, req.DestinationDir, req.ListenerID); err != nil {
		s.logger.Error("pack failed", "source_dir", req.SourceDir, "error", err)
		http.Error(w, "Pack failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListenerResponse{ListenerID: req.ListenerID})
}

func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "Missing url", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"reachable": rclone.Reachable(r.Context(), s.deps.HTTPClient, url),
	})
}

// decode reads a JSON body into v, answering 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		s.logger.Warn("rejecting invalid request body", "path", r.URL.Path, "error", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return false
	}
	return true
}

func listenerID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
