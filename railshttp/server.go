package railshttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railscron/railscron"
	"github.com/railscron/railscron/railslog"
)

// StorageOperationTimeout bounds every request's lookup/trigger call
// against the scheduler and its audit backend, the same guard the
// teacher's internal/http/constants package applied to storage calls.
const StorageOperationTimeout = 5 * time.Second

// coordinator is the subset of *railscron.Scheduler the HTTP layer
// depends on, kept narrow so handlers are testable against a fake.
type coordinator interface {
	RegisteredJobs() []railscron.Job
	Registered(key string) bool
	Dispatched(ctx context.Context, jobKey string, firing time.Time) (bool, error)
	Running() bool
	WithIdempotency(jobKey string, firing time.Time) string
}

type server struct {
	sched    coordinator
	validate *validator.Validate
	logger   railslog.Logger
	trigger  map[string]railscron.JobFunc
}

type jobView struct {
	Key        string `json:"key"`
	Expression string `json:"expression"`
}

type dispatchedView struct {
	Dispatched bool `json:"dispatched"`
}

type triggerRequest struct {
	FiringAt int64 `json:"firing_at" validate:"required"`
}

var (
	jobsErrorHandler    = func(l railslog.Logger) *errorHandler { return newErrorHandler("ListJobs", l) }
	jobErrorHandler     = func(l railslog.Logger) *errorHandler { return newErrorHandler("GetJob", l) }
	dispatchedHandler   = func(l railslog.Logger) *errorHandler { return newErrorHandler("GetDispatched", l) }
	triggerErrorHandler = func(l railslog.Logger) *errorHandler { return newErrorHandler("TriggerJob", l) }
)

func (s *server) healthzHandler(w http.ResponseWriter, req *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.sched.Running() {
		status = "stopped"
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"status": status})
}

func (s *server) listJobsHandler(w http.ResponseWriter, req *http.Request) {
	jobs := s.sched.RegisteredJobs()
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView{Key: j.Key, Expression: j.Expression})
	}
	writeJSON(w, views)
}

func (s *server) getJobHandler(w http.ResponseWriter, req *http.Request) {
	key := mux.Vars(req)["key"]
	eh := jobErrorHandler(s.logger)
	if !s.sched.Registered(key) {
		eh.writeAndLogError(w, fmt.Sprintf("job %q not found", key), errors.New("not registered"), http.StatusNotFound, railslog.Fields{"key": key})
		return
	}
	for _, j := range s.sched.RegisteredJobs() {
		if j.Key == key {
			writeJSON(w, jobView{Key: j.Key, Expression: j.Expression})
			return
		}
	}
	eh.writeAndLogError(w, fmt.Sprintf("job %q not found", key), errors.New("not registered"), http.StatusNotFound, railslog.Fields{"key": key})
}

func (s *server) getDispatchedHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	key := vars["key"]
	eh := dispatchedHandler(s.logger)

	unix, err := strconv.ParseInt(vars["unix"], 10, 64)
	if err != nil {
		eh.writeAndLogError(w, "invalid unix timestamp", err, http.StatusBadRequest, railslog.Fields{"unix": vars["unix"]})
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), StorageOperationTimeout)
	defer cancel()

	firing := time.Unix(unix, 0).UTC()
	dispatched, err := s.sched.Dispatched(ctx, key, firing)
	if err != nil {
		eh.writeAndLogError(w, "failed to look up dispatch record", err, http.StatusInternalServerError, railslog.Fields{"key": key, "firing_at": unix})
		return
	}
	writeJSON(w, dispatchedView{Dispatched: dispatched})
}

// triggerJobHandler lets an operator force one job's callback to run
// immediately for a chosen firing instant, deriving the same
// idempotency key Tick would have used. It bypasses lease acquisition
// deliberately: a manual trigger is an explicit operator action, not a
// scheduled firing racing other nodes.
func (s *server) triggerJobHandler(w http.ResponseWriter, req *http.Request) {
	key := mux.Vars(req)["key"]
	eh := triggerErrorHandler(s.logger)

	callback, ok := s.trigger[key]
	if !ok {
		eh.writeAndLogError(w, fmt.Sprintf("job %q not registered for manual trigger", key), errors.New("not registered"), http.StatusNotFound, railslog.Fields{"key": key})
		return
	}

	var body triggerRequest
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		eh.writeAndLogError(w, "failed to parse request body", err, http.StatusBadRequest, railslog.Fields{})
		return
	}
	if err := s.validate.StructCtx(req.Context(), body); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			eh.writeAndLogValidationErrors(w, verrs, railslog.Fields{"key": key})
			return
		}
		eh.writeAndLogError(w, "validation failed", err, http.StatusBadRequest, railslog.Fields{"key": key})
		return
	}

	firing := time.Unix(body.FiringAt, 0).UTC()
	idempotencyKey := s.sched.WithIdempotency(key, firing)

	ctx, cancel := context.WithTimeout(req.Context(), StorageOperationTimeout)
	defer cancel()
	if err := callback(ctx, firing, idempotencyKey); err != nil {
		eh.writeAndLogError(w, "manual trigger callback failed", err, http.StatusInternalServerError, railslog.Fields{"key": key})
		return
	}
	writeJSON(w, map[string]string{"idempotency_key": idempotencyKey})
}

func loggingMiddleware(logger railslog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("http request", railslog.Fields{"method": r.Method, "uri": r.RequestURI})
			next.ServeHTTP(w, r)
		})
	}
}

// NewServer builds an *http.Server exposing the introspection API over
// sched. trigger maps a job key to the callback invoked by the manual
// trigger endpoint; jobs absent from trigger cannot be triggered over
// HTTP even if they are registered with the scheduler.
func NewServer(sched *railscron.Scheduler, trigger map[string]railscron.JobFunc, addr string, logger railslog.Logger) *http.Server {
	if logger == nil {
		logger = railslog.Nop{}
	}
	s := &server{sched: sched, validate: validator.New(), logger: logger, trigger: trigger}
	s.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		fullJSON := field.Tag.Get("json")
		if fullJSON == "-" {
			return ""
		}
		name := strings.SplitN(fullJSON, ",", 2)[0]
		if name != "" {
			return name
		}
		return field.Name
	})

	router := mux.NewRouter()
	router.StrictSlash(true)
	router.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	router.HandleFunc("/jobs", s.listJobsHandler).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{key}", s.getJobHandler).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{key}/dispatched/{unix:[0-9]+}", s.getDispatchedHandler).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{key}/trigger", s.triggerJobHandler).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Use(loggingMiddleware(logger))

	return &http.Server{Addr: addr, Handler: router}
}
