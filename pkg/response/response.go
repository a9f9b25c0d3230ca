package response

import (
	"encoding/json"
	"net/http"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type APIResponse struct {
	Status  Status      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func write(w http.ResponseWriter, code int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// JSON writes a success envelope around data.
func JSON(w http.ResponseWriter, code int, data interface{}) {
	write(w, code, APIResponse{Status: StatusSuccess, Data: data})
}

// Message writes a success envelope with no data payload, for operations
// whose outcome is just an acknowledgement.
func Message(w http.ResponseWriter, code int, msg string) {
	write(w, code, APIResponse{Status: StatusSuccess, Message: msg})
}

func Error(w http.ResponseWriter, code int, msg string) {
	write(w, code, APIResponse{Status: StatusError, Message: msg})
}
