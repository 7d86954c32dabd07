package http

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/atinyakov/smsglue/internal/models"
)

type status struct {
	Error       int           `json:"error"`
	Description string        `json:"description"`
	Hooks       *models.Hooks `json:"hooks,omitempty"`
}

type envelope struct {
	Response status `json:"response"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, hooks *models.Hooks) {
	writeJSON(w, envelope{Response: status{Error: 0, Description: "Success", Hooks: hooks}})
}

// writeInvalid answers with status 200 and error 400 inside the envelope.
func writeInvalid(w http.ResponseWriter) {
	writeJSON(w, envelope{Response: status{Error: http.StatusBadRequest, Description: "Invalid parameters"}})
}

// readParams reads a flat parameter set from a JSON object or a
// url-encoded form body. JSON scalars are stringified.
func readParams(r *http.Request) (map[string]string, error) {
	params := map[string]string{}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if r.Body == nil || r.ContentLength == 0 {
			return params, nil
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			switch val := v.(type) {
			case nil:
			case string:
				params[k] = val
			case json.Number, bool:
				params[k] = fmt.Sprint(val)
			}
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = strings.Join(v, ",")
		}
	}
	return params, nil
}
