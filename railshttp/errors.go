// Package railshttp exposes a read-mostly introspection API over a
// running Scheduler: health, the registered job set, per-job dispatch
// lookups, a manual trigger endpoint for operators, and a Prometheus
// scrape endpoint. Built on gorilla/mux, go-playground/validator/v10,
// and logrus via railslog.
package railshttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/railscron/railscron/railslog"
)

// errorHandler writes and logs a JSON error response for one endpoint.
type errorHandler struct {
	endpoint string
	logger   railslog.Logger
}

func newErrorHandler(endpoint string, logger railslog.Logger) *errorHandler {
	return &errorHandler{endpoint: endpoint, logger: logger}
}

type jsonError struct {
	ErrorMsg string `json:"error"`
}

func (eh *errorHandler) writeAndLogError(w http.ResponseWriter, msg string, err error, statusCode int, fields railslog.Fields) {
	if fields == nil {
		fields = railslog.Fields{}
	}
	fields["endpoint"] = eh.endpoint
	logErr := fmt.Errorf("%s: %w", msg, err)
	responseErr := msg
	if statusCode >= 500 {
		eh.logger.Error(logErr.Error(), fields)
	} else {
		eh.logger.Debug(logErr.Error(), fields)
		responseErr = logErr.Error()
	}
	eh.writeErrorMsg(w, responseErr, statusCode)
}

func (eh *errorHandler) writeAndLogValidationErrors(w http.ResponseWriter, err validator.ValidationErrors, fields railslog.Fields) {
	if fields == nil {
		fields = railslog.Fields{}
	}
	fields["endpoint"] = eh.endpoint
	fields["validation"] = err.Error()
	eh.logger.Debug("validation error", fields)
	eh.writeErrorMsg(w, "validation error: "+err.Error(), http.StatusBadRequest)
}

func (eh *errorHandler) writeErrorMsg(w http.ResponseWriter, msg string, statusCode int) {
	resp, _ := json.Marshal(jsonError{ErrorMsg: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "error forming response data", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}
