// Package lookup serves score lookups from a scorecache.Cache over HTTP.
//
// Routes:
//
//	GET /scores/{id}  level info for one id
//	GET /scores       every cached score, as JSON or NDJSON
//	GET /status       cache size and refresher history
//	GET /ready        200 once the cache holds a snapshot, 503 before
//
// Errors are written as apierror JSON bodies.
package lookup

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/valk-sh/go-scorecache/apierror"
	"github.com/valk-sh/go-scorecache/level"
	"github.com/valk-sh/go-scorecache/scorecache"
)

var log = logging.Logger("lookup")

var (
	ErrUnparseableID = apierror.New(errors.New("unable to parse ID"), http.StatusBadRequest)
	ErrUnknownID     = apierror.New(errors.New("ID not known, may not exist or may not be level 5+"), http.StatusNotFound)
	ErrNotReady      = apierror.New(errors.New("scores not loaded yet"), http.StatusServiceUnavailable)
)

// Handler is an http.Handler that answers score lookups.
type Handler struct {
	cache     *scorecache.Cache
	refresher *scorecache.Refresher
	router    *mux.Router
}

// scoreResponse is the body returned for a single id.
type scoreResponse struct {
	// Ids exceed the integer precision of JavaScript clients, so are sent as
	// strings.
	ID uint64 `json:"id,string"`
	level.Info
}

type statusResponse struct {
	Scores      int        `json:"scores"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	State       string     `json:"state,omitempty"`
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	Successes   uint64     `json:"successes"`
	Failures    uint64     `json:"failures"`
}

// New creates a Handler that looks up scores in cache. The refresher is only
// used to report status, and may be nil.
func New(cache *scorecache.Cache, refresher *scorecache.Refresher) *Handler {
	h := &Handler{
		cache:     cache,
		refresher: refresher,
		router:    mux.NewRouter(),
	}
	h.router.HandleFunc("/scores/{id}", h.getScore).Methods(http.MethodGet)
	h.router.HandleFunc("/scores", h.listScores).Methods(http.MethodGet)
	h.router.HandleFunc("/status", h.getStatus).Methods(http.MethodGet)
	h.router.HandleFunc("/ready", h.getReady).Methods(http.MethodGet)
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierror.Write(w, apierror.New(nil, http.StatusNotFound))
	})
	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierror.Write(w, apierror.New(nil, http.StatusMethodNotAllowed))
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) getScore(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apierror.Write(w, ErrUnparseableID)
		return
	}
	xp, ok := h.cache.Get(id)
	if !ok {
		apierror.Write(w, ErrUnknownID)
		return
	}
	writeJSON(w, scoreResponse{
		ID:   id,
		Info: level.New(xp),
	})
}

func (h *Handler) listScores(w http.ResponseWriter, r *http.Request) {
	lw := newListResponseWriter(w)
	if err := lw.accept(r); err != nil {
		apierror.Write(w, err)
		return
	}
	var err error
	h.cache.Range(func(id, xp uint64) bool {
		err = lw.writeScore(id, xp)
		return err == nil
	})
	if err == nil {
		err = lw.close()
	}
	if err != nil {
		log.Warnw("Cannot write score listing", "err", err, "written", lw.count)
	}
}

func (h *Handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Scores:    h.cache.Len(),
		UpdatedAt: timePtr(h.cache.UpdatedAt()),
	}
	if h.refresher != nil {
		st := h.refresher.Status()
		resp.State = st.State.String()
		resp.LastAttempt = timePtr(st.LastAttempt)
		resp.LastSuccess = timePtr(st.LastSuccess)
		resp.Successes = st.Successes
		resp.Failures = st.Failures
		if st.LastErr != nil {
			resp.LastError = st.LastErr.Error()
		}
	}
	writeJSON(w, resp)
}

func (h *Handler) getReady(w http.ResponseWriter, _ *http.Request) {
	if h.cache.UpdatedAt().IsZero() {
		apierror.Write(w, ErrNotReady)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Errorw("Cannot encode response", "err", err)
		apierror.Write(w, apierror.New(err, http.StatusInternalServerError))
		return
	}
	w.Header().Set("Content-Type", mediaTypeJson)
	if _, err = w.Write(body); err != nil {
		log.Warnw("Cannot write response", "err", err)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
