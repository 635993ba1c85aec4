package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// envelope is the flat JSON response contract: a status discriminator, an
// optional message, and any accumulated payload fields alongside.
type envelope map[string]any

func ok() envelope {
	return envelope{"status": "OK"}
}

func errorf(message string) envelope {
	return envelope{"status": "ERROR", "message": message}
}

// merge folds a transition payload into the response, accumulating fields
// contributed by successive transition attempts.
func (e envelope) merge(payload map[string]any) envelope {
	for k, v := range payload {
		e[k] = v
	}
	return e
}

func (a *API) writeJSON(w http.ResponseWriter, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(env); err != nil {
		a.Log.Warn("write response", zap.Error(err))
	}
}
