package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/soaringjerry/Pictopercept/internal/middleware"
	"github.com/soaringjerry/Pictopercept/internal/services"
)

const maxAnswerBody = 1 << 20

// SurveyIndex is the read-only survey registry as seen by the router.
type SurveyIndex interface {
	services.SurveyLookup
	List() []*services.SurveyDefinition
}

type Options struct {
	Surveys       SurveyIndex
	Store         Store
	Sessions      services.SessionStore
	Cookies       *middleware.SessionCookies
	FetchPassword string
	Commit        string
	BuildTime     string
}

type Router struct {
	surveys   SurveyIndex
	store     Store
	sessions  *services.SessionService
	export    *services.ExportService
	cookies   *middleware.SessionCookies
	commit    string
	buildTime string
}

func NewRouter(opts Options) (*Router, error) {
	export, err := services.NewExportService(opts.Surveys, newExportStoreAdapter(opts.Store, opts.Surveys), opts.FetchPassword)
	if err != nil {
		return nil, err
	}
	return &Router{
		surveys:   opts.Surveys,
		store:     opts.Store,
		sessions:  services.NewSessionService(opts.Surveys, opts.Sessions, newResponseStoreAdapter(opts.Store, opts.Surveys)),
		export:    export,
		cookies:   opts.Cookies,
		commit:    opts.Commit,
		buildTime: opts.BuildTime,
	}, nil
}

// Handler builds the route table.
func (rt *Router) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", rt.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/fetch", rt.handleFetch).Methods(http.MethodPost)
	r.HandleFunc("/survey/{id}", rt.handleLanding).Methods(http.MethodGet)

	withSession := func(h http.HandlerFunc) http.Handler { return rt.cookies.WithSession(h) }
	r.Handle("/survey/{id}", withSession(rt.handleSubmit)).Methods(http.MethodPost)
	r.Handle("/survey/{id}/take", withSession(rt.handleTake)).Methods(http.MethodGet)
	r.Handle("/survey/{id}/take/{step:[0-9]+}", withSession(rt.handleTake)).Methods(http.MethodGet)
	r.Handle("/survey/{id}/thanks", withSession(rt.handleThanks)).Methods(http.MethodGet)
	r.Handle("/img/{pair_index:[0-9]+}/{side}", withSession(rt.handleImage)).Methods(http.MethodGet)
	return r
}

// PublicPage reports whether r asks for a page that is the same for every
// participant: the survey index or a survey landing.
func PublicPage(r *http.Request) bool {
	if r.URL.Path == "/" {
		return true
	}
	id, ok := strings.CutPrefix(r.URL.Path, "/survey/")
	return ok && id != "" && !strings.Contains(id, "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error    services.ErrorCode `json:"error"`
	Message  string             `json:"message"`
	Redirect string             `json:"redirect,omitempty"`
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorSession:
		return http.StatusConflict
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail maps a service error onto the response. Session errors point the
// participant back at a fresh step 1.
func (rt *Router) fail(w http.ResponseWriter, r *http.Request, err error) {
	var qerrs services.QuestionErrors
	if errors.As(err, &qerrs) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": services.ErrorInvalid, "errors": qerrs})
		return
	}
	se, ok := services.AsServiceError(err)
	if !ok {
		log.Printf("api: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: services.ErrorStorage, Message: "internal error"})
		return
	}
	body := errorBody{Error: se.Code, Message: se.Message}
	if se.Code == services.ErrorStorage {
		log.Printf("api: %s %s: %v", r.Method, r.URL.Path, err)
	}
	if se.Code == services.ErrorSession {
		if id := mux.Vars(r)["id"]; id != "" {
			body.Redirect = "/survey/" + id + "/take?restart=1"
		}
	}
	writeJSON(w, statusFor(se.Code), body)
}

func session(r *http.Request) *services.Session {
	if s, ok := middleware.SessionFromContext(r.Context()); ok {
		return s
	}
	return &services.Session{}
}

type surveySummary struct {
	ID                      string `json:"id"`
	Description             string `json:"description"`
	AccentColor             string `json:"accent_color"`
	DurationSeconds         *int   `json:"duration_seconds"`
	RegularQuestionsEnabled bool   `json:"regular_questions_enabled"`
	TakeURL                 string `json:"take_url"`
}

func summarize(d *services.SurveyDefinition) surveySummary {
	return surveySummary{
		ID:                      d.ID,
		Description:             d.Description,
		AccentColor:             d.AccentColor,
		DurationSeconds:         d.DurationSeconds,
		RegularQuestionsEnabled: d.RegularQuestionsEnabled,
		TakeURL:                 "/survey/" + d.ID + "/take",
	}
}

// GET /
func (rt *Router) handleIndex(w http.ResponseWriter, r *http.Request) {
	defs := rt.surveys.List()
	out := make([]surveySummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, summarize(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"surveys": out})
}

// GET /survey/{id}
func (rt *Router) handleLanding(w http.ResponseWriter, r *http.Request) {
	def, ok := rt.surveys.Survey(mux.Vars(r)["id"])
	if !ok {
		rt.fail(w, r, services.NewNotFoundError("survey not found"))
		return
	}
	writeJSON(w, http.StatusOK, summarize(def))
}

// GET /survey/{id}/take[/{step}]?restart=1&PROLIFIC_PID=...
func (rt *Router) handleTake(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req := services.EnterRequest{
		SurveyID: vars["id"],
		Restart:  r.URL.Query().Get("restart") == "1",
		PanelID:  r.URL.Query().Get("PROLIFIC_PID"),
	}
	if raw, ok := vars["step"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < int(services.StepOne) || n > int(services.StepDone) {
			rt.fail(w, r, services.NewNotFoundError("unknown step"))
			return
		}
		req.Step = services.Step(n)
	}
	view, err := rt.sessions.Enter(r.Context(), session(r), req)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	if view.Done {
		http.Redirect(w, r, "/survey/"+req.SurveyID+"/thanks", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /survey/{id}
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAnswerBody))
	if err != nil {
		rt.fail(w, r, services.NewInvalidError("The request does not have a proper body."))
		return
	}
	res, err := rt.sessions.Submit(r.Context(), session(r), mux.Vars(r)["id"], body)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /survey/{id}/thanks
func (rt *Router) handleThanks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := rt.surveys.Survey(id); !ok {
		rt.fail(w, r, services.NewNotFoundError("survey not found"))
		return
	}
	rt.sessions.Finish(r.Context(), session(r))
	writeJSON(w, http.StatusOK, map[string]any{"survey_id": id, "message": "Thank you for participating!"})
}

// GET /img/{pair_index}/{side}
func (rt *Router) handleImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := strconv.Atoi(vars["pair_index"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	path, err := rt.sessions.ImageFile(session(r), idx, vars["side"])
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	http.ServeFile(w, r, path)
}

// POST /fetch
// { pass, survey_name, chunk_size?, mode? } -> {"data":[...]} streamed chunk by chunk
func (rt *Router) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pass       string `json:"pass"`
		SurveyName string `json:"survey_name"`
		ChunkSize  int    `json:"chunk_size"`
		Mode       string `json:"mode"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnswerBody)).Decode(&req); err != nil {
		rt.fail(w, r, services.NewInvalidError("The request does not have a proper body."))
		return
	}
	params, err := rt.export.Prepare(services.ExportParams{
		Pass:      req.Pass,
		SurveyID:  req.SurveyName,
		ChunkSize: req.ChunkSize,
		Mode:      services.ExportMode(req.Mode),
	})
	if err != nil {
		rt.fail(w, r, err)
		return
	}

	// Nothing is written before the first page is read. A failure after
	// that leaves the body unterminated.
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"data":[`)
	}
	flusher, _ := w.(http.Flusher)
	first := true
	emit := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		start()
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		_, err = w.Write(b)
		return err
	}
	flush := func() {
		start()
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := rt.export.Stream(r.Context(), params, emit, flush); err != nil {
		if !started {
			rt.fail(w, r, err)
			return
		}
		log.Printf("api: export %s aborted: %v", params.SurveyID, err)
		return
	}
	start()
	_, _ = io.WriteString(w, "]}")
}

// GET /health
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	ok := true
	if err := rt.store.Ping(r.Context()); err != nil {
		log.Printf("api: health: %v", err)
		status, ok = http.StatusServiceUnavailable, false
	}
	writeJSON(w, status, map[string]any{
		"ok":         ok,
		"name":       "Pictopercept API",
		"surveys":    len(rt.surveys.List()),
		"commit":     rt.commit,
		"build_time": rt.buildTime,
	})
}
