package handler

import (
	"encoding/json"
	"net/http"

	"payauth-service/internal/domain"
	"payauth-service/internal/middleware"
	"payauth-service/internal/usecase"
	"payauth-service/pkg/response"

	"github.com/go-chi/chi/v5"
)

type CredentialHandler struct {
	creds *usecase.CredentialUsecase
}

func NewCredentialHandler(creds *usecase.CredentialUsecase) *CredentialHandler {
	return &CredentialHandler{creds: creds}
}

type registerCredentialRequest struct {
	Type     domain.CredentialType `json:"type"`
	Template json.RawMessage       `json:"template"`
	Label    string                `json:"label"`
}

func (h *CredentialHandler) Register(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	sessionID, _ := middleware.SessionID(r.Context())

	var req registerCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, err := h.creds.Register(r.Context(), sessionID, accountID, req.Type, req.Template, req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, cred)
}

func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	creds, err := h.creds.List(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, creds)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *CredentialHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	sessionID, _ := middleware.SessionID(r.Context())
	credentialID := chi.URLParam(r, "credentialID")

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, err := h.creds.SetActive(r.Context(), sessionID, accountID, credentialID, req.Active)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, cred)
}

type relabelRequest struct {
	Label string `json:"label"`
}

func (h *CredentialHandler) Relabel(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	sessionID, _ := middleware.SessionID(r.Context())
	credentialID := chi.URLParam(r, "credentialID")

	var req relabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, err := h.creds.Relabel(r.Context(), sessionID, accountID, credentialID, req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, cred)
}

func (h *CredentialHandler) Remove(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	sessionID, _ := middleware.SessionID(r.Context())
	credentialID := chi.URLParam(r, "credentialID")

	if err := h.creds.Remove(r.Context(), sessionID, accountID, credentialID); err != nil {
		writeError(w, err)
		return
	}
	response.Message(w, http.StatusOK, "credential removed")
}
