package handler

import (
	"encoding/json"
	"net/http"

	"payauth-service/internal/domain"
	"payauth-service/internal/middleware"
	"payauth-service/internal/usecase"
	"payauth-service/pkg/response"
)

type AuthHandler struct {
	accounts *usecase.AccountUsecase
	sessions *usecase.SessionUsecase
}

func NewAuthHandler(accounts *usecase.AccountUsecase, sessions *usecase.SessionUsecase) *AuthHandler {
	return &AuthHandler{accounts: accounts, sessions: sessions}
}

type signupRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.Signup(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, account)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Account *domain.Account `json:"account"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.VerifyPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	device := domain.DeviceInfo{
		DeviceID:  req.DeviceID,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	_, token, err := h.sessions.Issue(r.Context(), account.ID, device)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, loginResponse{Token: token, Account: account})
}

type confirmPasswordRequest struct {
	Password string `json:"password"`
}

// ConfirmPassword re-proves the current password on a live session, opening
// the freshness window for credential and PIN changes.
func (h *AuthHandler) ConfirmPassword(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	sessionID, _ := middleware.SessionID(r.Context())

	var req confirmPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.accounts.ConfirmPassword(r.Context(), sessionID, accountID, req.Password); err != nil {
		writeError(w, err)
		return
	}
	response.Message(w, http.StatusOK, "password confirmed")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	response.Message(w, http.StatusOK, "password changed")
}

type setPINRequest struct {
	PIN string `json:"pin"`
}

func (h *AuthHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	sessionID, _ := middleware.SessionID(r.Context())

	var req setPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.accounts.SetPIN(r.Context(), sessionID, accountID, req.PIN); err != nil {
		writeError(w, err)
		return
	}
	response.Message(w, http.StatusOK, "pin updated")
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	account, err := h.accounts.Get(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, account)
}

func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	sessions, err := h.sessions.List(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, sessions)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if len(token) > 7 {
		token = token[7:] // strip "Bearer "
	}
	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	response.Message(w, http.StatusOK, "logged out")
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	if err := h.sessions.RevokeAll(r.Context(), accountID); err != nil {
		writeError(w, err)
		return
	}
	response.Message(w, http.StatusOK, "all sessions revoked")
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	sessionID, _ := middleware.SessionID(r.Context())

	if err := h.accounts.Delete(r.Context(), sessionID, accountID); err != nil {
		writeError(w, err)
		return
	}
	response.Message(w, http.StatusOK, "account deleted")
}
