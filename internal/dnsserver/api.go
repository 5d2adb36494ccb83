package dnsserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// maxUpload caps HTTP uploads; a chunked file is bounded by 65535 chunks.
const maxUpload = 16 << 20

// MessageInfo is the JSON view of a stored message.
type MessageInfo struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Chunks    int       `json:"chunks"`
	Fetches   int       `json:"fetches"`
	CreatedAt time.Time `json:"created_at"`
}

func infoOf(msg *Message) MessageInfo {
	return MessageInfo{
		ID:        msg.ID,
		State:     msg.State.String(),
		Chunks:    len(msg.Chunks),
		Fetches:   msg.Fetches,
		CreatedAt: msg.CreatedAt,
	}
}

// APIHandler serves the HTTP side of the server: uploading files to
// publish, listing and removing them, and storage statistics.
func (s *Server) APIHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /messages", s.handleListMessages)
	mux.HandleFunc("DELETE /messages/{id}", s.handleDeleteMessage)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpload))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	msg, err := s.Publish(r.URL.Query().Get("id"), data)
	switch {
	case errors.Is(err, ErrExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, infoOf(msg))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.storage.ListMessages()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	infos := make([]MessageInfo, 0, len(messages))
	for _, msg := range messages {
		infos = append(infos, infoOf(msg))
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.storage.DeleteMessage(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.WithField("id", id).Info("Message deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.storage.GetStats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnf("Failed to write JSON response: %v", err)
	}
}

// Uploader publishes files through a server's HTTP API.
type Uploader struct {
	BaseURL string
	HTTP    *http.Client
}

// NewUploader creates an Uploader for the API at baseURL.
func NewUploader(baseURL string, timeout time.Duration) *Uploader {
	return &Uploader{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Upload publishes data, under id when it is not empty, and returns what
// the server stored.
func (u *Uploader) Upload(ctx context.Context, id string, data []byte) (*MessageInfo, error) {
	target := u.BaseURL + "/upload"
	if id != "" {
		target += "?id=" + url.QueryEscape(id)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.HTTP.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upload")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("upload rejected: %s: %s", resp.Status, bytes.TrimSpace(body))
		if resp.StatusCode == http.StatusConflict {
			return nil, errors.Wrap(ErrExists, err.Error())
		}
		return nil, errors.WithStack(err)
	}

	var info MessageInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.Wrap(err, "decode upload response")
	}
	return &info, nil
}
