package web

import (
	"net/http"

	"github.com/JonMunkholm/fiscal/internal/core"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"senha"`
}

type loginUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"nome"`
	Email string `json:"email"`
}

type loginResponse struct {
	Success bool      `json:"success"`
	User    loginUser `json:"usuario"`
}

// handleLogin checks an email and password. Form bodies are accepted for
// clients that cannot send JSON.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("senha")
	}

	ctx := WithRequestMetadata(r.Context(), r)
	user, err := s.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, loginResponse{
		Success: true,
		User: loginUser{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
		},
	})
}

type healthResponse struct {
	Status string `json:"status"`
	core.HealthStatus
}

// handleHealth reports 503 when the store does not answer.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.service.Health(r.Context())
	resp := healthResponse{Status: "ok", HealthStatus: h}
	status := http.StatusOK
	if !h.Healthy() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
