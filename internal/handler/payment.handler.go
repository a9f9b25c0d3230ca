package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"payauth-service/internal/domain"
	"payauth-service/internal/middleware"
	"payauth-service/internal/usecase"
	"payauth-service/internal/verifier"
	"payauth-service/pkg/response"
	xerrors "payauth-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
)

type PaymentHandler struct {
	authorize    *usecase.AuthorizeUsecase
	transactions *usecase.TransactionUsecase
}

func NewPaymentHandler(authorize *usecase.AuthorizeUsecase, transactions *usecase.TransactionUsecase) *PaymentHandler {
	return &PaymentHandler{authorize: authorize, transactions: transactions}
}

type authorizeRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (h *PaymentHandler) RequestAuthorization(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	attempt, err := h.authorize.RequestAuthorization(r.Context(), accountID, req.Amount, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, attempt)
}

func (h *PaymentHandler) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	challenge, err := h.authorize.IssueChallenge(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, challenge)
}

type submitProofRequest struct {
	Method      domain.CredentialType `json:"method"`
	Secret      string                `json:"secret,omitempty"`
	ChallengeID string                `json:"challenge_id,omitempty"`
	Signature   []byte                `json:"signature,omitempty"`
	Embedding   []float64             `json:"embedding,omitempty"`
	Sample      []byte                `json:"sample,omitempty"`
	Code        string                `json:"code,omitempty"`
	Cancelled   bool                  `json:"cancelled,omitempty"`
}

func (h *PaymentHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	var req submitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	proof := verifier.Proof{
		Secret:      req.Secret,
		ChallengeID: req.ChallengeID,
		Signature:   req.Signature,
		Embedding:   req.Embedding,
		Sample:      req.Sample,
		Code:        req.Code,
		Cancelled:   req.Cancelled,
	}

	attempt, err := h.authorize.SubmitProof(r.Context(), attemptID, req.Method, proof)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, attempt)
}

func (h *PaymentHandler) CancelAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	attempt, err := h.authorize.CancelAttempt(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, attempt)
}

func (h *PaymentHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	attempt, err := h.authorize.GetAttempt(attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, attempt)
}

type commitRequest struct {
	AttemptID      string                 `json:"attempt_id"`
	Type           domain.TransactionType `json:"type"`
	Amount         int64                  `json:"amount"`
	Description    string                 `json:"description"`
	CounterpartyID *string                `json:"counterparty_id,omitempty"`
}

func (h *PaymentHandler) Commit(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.transactions.Commit(r.Context(), accountID, req.AttemptID, req.Type, req.Amount, req.Description, req.CounterpartyID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, rec)
}

type topUpRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
	Description    string `json:"description"`
}

func (h *PaymentHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdempotencyKey == "" {
		writeError(w, xerrors.ErrInvalidRequest)
		return
	}

	rec, err := h.transactions.TopUp(r.Context(), accountID, req.Amount, req.IdempotencyKey, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, rec)
}

func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	recs, err := h.transactions.History(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, recs)
}

func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	recordID := chi.URLParam(r, "transactionID")

	rec, err := h.transactions.Get(r.Context(), accountID, recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rec)
}
