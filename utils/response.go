package utils

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// M is shorthand for ad-hoc JSON bodies
type M map[string]interface{}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// WriteError writes {"message": message}
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, M{"message": message})
}

// WriteServerError logs err and answers 500 without leaking it
func WriteServerError(w http.ResponseWriter, message string, err error) {
	log.Printf("%s: %v", message, err)
	WriteJSON(w, http.StatusInternalServerError, M{"message": message})
}

// DecodeJSON reads a JSON body into v. It answers 413 or 400 itself and
// reports whether the caller may continue.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	WriteJSON(w, http.StatusBadRequest, M{"message": "Invalid input", "error": err.Error()})
	return false
}
