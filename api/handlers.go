package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/forum"
	"github.com/burrowbb/burrow/telemetry"
)

// actorUIDHeader carries the authenticated user id, set by the auth
// gateway. Absent or zero means guest.
const actorUIDHeader = "X-Burrow-UID"

func (s *Server) handlePostTopic(w http.ResponseWriter, r *http.Request) {
	var req forum.TopicPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UID = actorUID(r)
	req.IP = remoteIP(r)
	req.FromQueue = false

	result, err := s.forum.PostNewTopic(&req)
	if err != nil {
		writeForumError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	tid, err := strconv.ParseInt(chi.URLParam(r, "tid"), 10, 64)
	if err != nil || tid <= 0 {
		writeError(w, http.StatusBadRequest, "invalid topic id")
		return
	}
	var req forum.ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TID = tid
	req.UID = actorUID(r)
	req.IP = remoteIP(r)
	req.FromQueue = false

	post, err := s.forum.Reply(&req)
	if err != nil {
		writeForumError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseInt(chi.URLParam(r, "pid"), 10, 64)
	if err != nil || pid <= 0 {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	var req forum.PostEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.PID = pid
	req.UID = actorUID(r)
	req.FromQueue = false

	result, err := s.forum.EditPost(&req)
	if err != nil {
		writeForumError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseInt(chi.URLParam(r, "pid"), 10, 64)
	if err != nil || pid <= 0 {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	post, err := s.forum.GetPostData(pid)
	if err != nil {
		writeForumError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func actorUID(r *http.Request) int64 {
	uid, _ := strconv.ParseInt(r.Header.Get(actorUIDHeader), 10, 64)
	if uid < 0 {
		return 0
	}
	return uid
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusByCode maps domain error codes to HTTP statuses. Unknown codes
// fall through to 500.
var statusByCode = map[string]int{
	"invalid-uid":                         http.StatusBadRequest,
	"invalid-pid":                         http.StatusBadRequest,
	"invalid-data":                        http.StatusBadRequest,
	"invalid-tags":                        http.StatusBadRequest,
	"guest-handle-invalid":                http.StatusBadRequest,
	"title-too-short":                     http.StatusBadRequest,
	"title-too-long":                      http.StatusBadRequest,
	"content-too-short":                   http.StatusBadRequest,
	"content-too-long":                    http.StatusBadRequest,
	"username-taken":                      http.StatusConflict,
	"no-category":                         http.StatusNotFound,
	"no-topic":                            http.StatusNotFound,
	"no-post":                             http.StatusNotFound,
	"no-privileges":                       http.StatusForbidden,
	"topic-locked":                        http.StatusForbidden,
	"topic-deleted":                       http.StatusForbidden,
	"not-enough-reputation-to-post-links": http.StatusForbidden,
	"too-many-posts":                      http.StatusTooManyRequests,
}

// writeForumError maps a domain error to its HTTP shape. Infrastructure
// errors are logged and surface as an opaque 500; their text never
// reaches the caller.
func writeForumError(w http.ResponseWriter, err error) {
	var domainErr *forum.Error
	if errors.As(err, &domainErr) {
		status, ok := statusByCode[domainErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		telemetry.PublishFailuresTotal.With(domainErr.Code).Inc()
		writeJSON(w, status, map[string]interface{}{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		})
		return
	}
	telemetry.PublishFailuresTotal.With("internal").Inc()
	log.Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
