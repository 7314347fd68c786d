// Package httputil holds helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("httputil")

// WriteJSON writes v as json with the given code. An error value is written
// as {"error": "..."}. Pass ?pretty=1 for indented output.
func WriteJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	if pretty, _ := BoolFromQuery(r, "pretty", false); pretty { //nolint:errcheck
		enc.SetIndent("", "  ")
	}
	if err, ok := v.(error); ok {
		v = map[string]interface{}{"error": err.Error()}
	}
	if err := enc.Encode(v); err != nil {
		log.WithError(err).WithField("path", r.URL.Path).Warn("failed to write response")
	}
}

// BoolFromQuery obtains a boolean from a query entry.
func BoolFromQuery(r *http.Request, key string, defaultVal bool) (bool, error) {
	switch q := r.URL.Query().Get(key); q {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	case "":
		return defaultVal, nil
	default:
		return false, fmt.Errorf("invalid '%s' query value of '%s'", key, q)
	}
}

// IntFromParam obtains a non-negative integer from a chi URL parameter.
func IntFromParam(r *http.Request, key string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, key))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid '%s' parameter of '%s'", key, chi.URLParam(r, key))
	}
	return v, nil
}
