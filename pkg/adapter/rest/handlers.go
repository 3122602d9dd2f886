package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittons/pkg/namespace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// PathPrefix is the URL prefix under which namespace paths are served.
const PathPrefix = "/v1"

// UserHeader carries the caller identity when the user.name query
// parameter is absent.
const UserHeader = "X-Dittons-User"

type operation struct {
	method string
	serve  func(s *RESTAdapter, ctx context.Context, w http.ResponseWriter, r *http.Request, p string)
}

var operations = map[string]operation{
	"MKDIRS":        {http.MethodPut, (*RESTAdapter).mkdirs},
	"CREATE":        {http.MethodPut, (*RESTAdapter).create},
	"OPEN":          {http.MethodGet, (*RESTAdapter).open},
	"LISTSTATUS":    {http.MethodGet, (*RESTAdapter).listStatus},
	"GETFILESTATUS": {http.MethodGet, (*RESTAdapter).getFileStatus},
	"DELETE":        {http.MethodDelete, (*RESTAdapter).delete},
}

// Handler returns the HTTP handler serving the REST API. Serve uses it
// internally; tests mount it on an httptest.Server.
func (s *RESTAdapter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc(PathPrefix+"/", s.handleNamespace)
	return mux
}

func (s *RESTAdapter) handleNamespace(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query()

	opName := strings.ToUpper(query.Get("op"))
	op, known := operations[opName]
	if !known {
		opName = "UNKNOWN"
	}

	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	s.metrics.RecordRequestStart(opName)
	defer func() {
		s.metrics.RecordRequestEnd(opName)
		s.metrics.RecordRequest(opName, rec.code, time.Since(start))
	}()

	user, key := identity(r, query)
	if !s.limiter.Allow(key) {
		s.metrics.RecordRateLimited()
		log.Debug("Rate limited %s %s from %s (%.2f tokens left)", r.Method, r.URL.Path, key, s.limiter.Tokens(key))
		writeException(rec, http.StatusTooManyRequests, ExceptionRetriable, "Too many requests, retry later")
		return
	}

	if !known {
		writeException(rec, http.StatusBadRequest, ExceptionIllegalArgument,
			fmt.Sprintf("Invalid value for parameter \"op\": %q", query.Get("op")))
		return
	}
	if r.Method != op.method {
		rec.Header().Set("Allow", op.method)
		writeException(rec, http.StatusMethodNotAllowed, ExceptionUnsupported,
			fmt.Sprintf("Invalid HTTP method %s for op %s", r.Method, opName))
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx = namespace.WithCaller(ctx, user)

	p := "/" + strings.TrimPrefix(r.URL.Path, PathPrefix+"/")
	log.Debug("%s %s user=%s", opName, p, user)

	op.serve(s, ctx, rec, r, p)
}

func (s *RESTAdapter) mkdirs(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) {
	ok, err := s.engine.Mkdirs(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BooleanResponse{Boolean: ok})
}

func (s *RESTAdapter) create(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) {
	query := r.URL.Query()

	overwrite, err := boolParam(query, "overwrite")
	if err != nil {
		writeException(w, http.StatusBadRequest, ExceptionIllegalArgument, err.Error())
		return
	}
	blockSize, err := uintParam(query, "blocksize")
	if err != nil {
		writeException(w, http.StatusBadRequest, ExceptionIllegalArgument, err.Error())
		return
	}

	fw, err := s.engine.Create(ctx, p, overwrite, blockSize)
	if err != nil {
		writeError(w, err)
		return
	}

	n, err := io.Copy(fw, r.Body)
	if err != nil {
		_ = fw.Abort()
		log.Debug("CREATE %s aborted after %d bytes: %v", p, n, err)
		writeError(w, err)
		return
	}
	if err := fw.Close(); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", PathPrefix+fw.Path())
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusCreated)
}

func (s *RESTAdapter) open(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) {
	fr, err := s.engine.Open(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	defer fr.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatUint(fr.Size(), 10))
	w.WriteHeader(http.StatusOK)

	if n, err := io.Copy(w, fr); err != nil {
		// Headers are gone; the client sees a short body.
		log.Debug("OPEN %s interrupted after %d bytes: %v", p, n, err)
	}
}

func (s *RESTAdapter) listStatus(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) {
	canon, err := namespace.Clean(p)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := s.engine.ListStatus(ctx, canon)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]FileStatus, 0, len(list))
	for _, st := range list {
		suffix := st.Name
		if st.Path == canon {
			suffix = ""
		}
		out = append(out, toFileStatus(st, suffix))
	}
	writeJSON(w, http.StatusOK, FileStatusesResponse{FileStatuses: FileStatuses{FileStatus: out}})
}

func (s *RESTAdapter) getFileStatus(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) {
	st, err := s.engine.GetFileStatus(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FileStatusResponse{FileStatus: toFileStatus(*st, "")})
}

func (s *RESTAdapter) delete(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) {
	recursive, err := boolParam(r.URL.Query(), "recursive")
	if err != nil {
		writeException(w, http.StatusBadRequest, ExceptionIllegalArgument, err.Error())
		return
	}

	ok, err := s.engine.Delete(ctx, p, recursive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BooleanResponse{Boolean: ok})
}

func (s *RESTAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		s.metrics.RecordRequest("HEALTHZ", rec.code, time.Since(start))
	}()

	if err := s.engine.Healthcheck(r.Context()); err != nil {
		log.Warn("Healthcheck failed: %v", err)
		writeJSON(rec, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(rec, http.StatusOK, map[string]string{"status": "ok"})
}

// identity returns the caller recorded as owner and the key used for
// per-client rate limiting.
func identity(r *http.Request, query url.Values) (user, key string) {
	user = query.Get("user.name")
	if user == "" {
		user = r.Header.Get(UserHeader)
	}
	if user != "" {
		return user, user
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "", host
}

// StatusFor maps a namespace error code to its HTTP status.
func StatusFor(code namespace.ErrorCode) int {
	switch code {
	case namespace.ErrNotFound:
		return http.StatusNotFound
	case namespace.ErrAlreadyExists, namespace.ErrDirectoryNotEmpty, namespace.ErrLeaseHeld:
		return http.StatusConflict
	case namespace.ErrNotADirectory, namespace.ErrInvalidPath:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := namespace.CodeOf(err)
	if code == 0 {
		code = namespace.ErrIO
	}
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		log.Error("Request failed: %v", err)
	}
	writeException(w, status, code.String(), err.Error())
}

func writeException(w http.ResponseWriter, status int, exception, message string) {
	writeJSON(w, status, RemoteExceptionResponse{
		RemoteException: RemoteException{Exception: exception, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to encode response: %v", err)
	}
}

func boolParam(query url.Values, name string) (bool, error) {
	v := query.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("Invalid value for parameter %q: %q", name, v)
	}
	return b, nil
}

func uintParam(query url.Values, name string) (uint64, error) {
	v := query.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("Invalid value for parameter %q: %q", name, v)
	}
	return n, nil
}

// statusRecorder captures the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.code = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
