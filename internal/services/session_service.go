package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Step int

const (
	StepOne  Step = 1
	StepTwo  Step = 2
	StepDone Step = 3
)

// MaxParticipantIDLen caps panel supplied identifiers.
const MaxParticipantIDLen = 64

const (
	ContentRegular = "regular_questions"
	ContentImages  = "image_survey"
)

// SessionState is everything the server remembers about one participant.
type SessionState struct {
	ParticipantID    string                `json:"participant_id"`
	IsPanel          bool                  `json:"is_panel"`
	SurveyID         string                `json:"survey_id"`
	QuestionsFirst   bool                  `json:"questions_first"`
	Step             Step                  `json:"step"`
	StepOneCompleted bool                  `json:"step_1_completed"`
	Challenge        *GeneratedImageSurvey `json:"challenge,omitempty"`
	AnswerCursor     int                   `json:"answer_cursor"`
	CreatedAt        time.Time             `json:"created_at"`
}

func (s *SessionState) clone() *SessionState {
	cp := *s
	return &cp
}

// Session couples the cookie-bound session id with its loaded state. State is
// nil when the participant has no active session.
type Session struct {
	ID    string
	State *SessionState
}

// SessionStore persists per-participant session state.
type SessionStore interface {
	Load(ctx context.Context, sid string) (*SessionState, error)
	Save(ctx context.Context, sid string, st *SessionState) error
	Delete(ctx context.Context, sid string) error
}

// AnswerStore persists validated answers into a survey's collections.
type AnswerStore interface {
	SaveQuestionAnswers(ctx context.Context, surveyID string, doc *QuestionDocument) error
	SaveImageAnswers(ctx context.Context, surveyID string, docs []*ImageDocument) error
}

// SurveyLookup resolves survey identifiers against the startup registry.
type SurveyLookup interface {
	Survey(id string) (*SurveyDefinition, bool)
}

type EnterRequest struct {
	SurveyID string
	// Step is the explicitly requested step; zero means the current one.
	Step    Step
	Restart bool
	PanelID string
}

type PairView struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
	ImageA string `json:"image_a"`
	ImageB string `json:"image_b"`
	Left   string `json:"left_url"`
	Right  string `json:"right_url"`
}

type ImageSurveyView struct {
	Pairs           []PairView `json:"pair_questions"`
	TimeBarDuration *int       `json:"time_bar_duration"`
	DurationSeconds *int       `json:"duration_seconds"`
}

// StepView is what the participant's browser needs to render a step.
type StepView struct {
	SurveyID    string            `json:"survey_id"`
	Step        Step              `json:"step"`
	Kind        string            `json:"kind"`
	AccentColor string            `json:"accent_color"`
	PostURL     string            `json:"post_url"`
	Questions   []RegularQuestion `json:"questions,omitempty"`
	Images      *ImageSurveyView  `json:"image_survey,omitempty"`
	Done        bool              `json:"-"`
}

type SubmitResult struct {
	Next Step `json:"next"`
	Done bool `json:"done"`
}

// SessionService drives one participant through step 1, step 2 and done.
type SessionService struct {
	surveys     SurveyLookup
	sessions    SessionStore
	answers     AnswerStore
	now         func() time.Time
	idGenerator func() string
	newRand     func() *rand.Rand
}

func NewSessionService(surveys SurveyLookup, sessions SessionStore, answers AnswerStore) *SessionService {
	return &SessionService{
		surveys:     surveys,
		sessions:    sessions,
		answers:     answers,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: defaultParticipantID,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
}

func defaultParticipantID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// contentFor reports what a numeric step shows: regular questions on step 1
// when questions come first, and on step 2 otherwise.
func contentFor(step Step, questionsFirst bool) string {
	if (step == StepOne) == questionsFirst {
		return ContentRegular
	}
	return ContentImages
}

func (s *SessionService) survey(id string) (*SurveyDefinition, error) {
	def, ok := s.surveys.Survey(id)
	if !ok {
		return nil, NewNotFoundError("survey not found")
	}
	return def, nil
}

func (s *SessionService) freshState(def *SurveyDefinition, panelID string, rng *rand.Rand) *SessionState {
	st := &SessionState{SurveyID: def.ID, Step: StepOne, CreatedAt: s.now()}
	if pid := strings.TrimSpace(panelID); pid != "" {
		if len(pid) > MaxParticipantIDLen {
			pid = pid[:MaxParticipantIDLen]
		}
		st.ParticipantID = pid
		st.IsPanel = true
	} else {
		st.ParticipantID = s.idGenerator()
	}
	if def.RegularQuestionsEnabled {
		st.QuestionsFirst = rng.IntN(2) == 1
	}
	return st
}

func (s *SessionService) clear(ctx context.Context, sess *Session) {
	if sess.ID != "" {
		if err := s.sessions.Delete(ctx, sess.ID); err != nil {
			log.Printf("session: clear %s: %v", sess.ID, err)
		}
	}
	sess.State = nil
}

// Enter serves the requested (or current) step, creating or resetting the
// session when this is a fresh step 1 visit.
func (s *SessionService) Enter(ctx context.Context, sess *Session, req EnterRequest) (*StepView, error) {
	def, err := s.survey(req.SurveyID)
	if err != nil {
		return nil, err
	}
	if req.Step == StepTwo && !def.RegularQuestionsEnabled {
		s.clear(ctx, sess)
		return &StepView{SurveyID: def.ID, Step: StepDone, Done: true}, nil
	}
	rng := s.newRand()

	st := sess.State
	changed := false
	if st == nil || st.SurveyID != def.ID || req.Restart {
		if req.Step == StepTwo {
			return nil, NewSessionError("no active session, please start again from step 1")
		}
		st = s.freshState(def, req.PanelID, rng)
		changed = true
	} else {
		st = st.clone()
	}

	step := req.Step
	if step == 0 || (step == StepOne && st.StepOneCompleted) {
		step = st.Step
	}
	if step == StepTwo && !st.StepOneCompleted {
		return nil, NewSessionError("step 1 must be completed first")
	}
	if step >= StepDone {
		s.clear(ctx, sess)
		return &StepView{SurveyID: def.ID, Step: StepDone, Done: true}, nil
	}

	view := &StepView{
		SurveyID:    def.ID,
		Step:        step,
		Kind:        contentFor(step, st.QuestionsFirst),
		AccentColor: def.AccentColor,
		PostURL:     "/survey/" + def.ID,
	}
	if view.Kind == ContentRegular {
		view.Questions = def.RegularQuestions
	} else {
		if st.Challenge == nil {
			st.Challenge = GenerateImageSurvey(def, rng)
			changed = true
		}
		view.Images = imageView(st.Challenge)
	}

	if changed {
		if err := s.sessions.Save(ctx, sess.ID, st); err != nil {
			return nil, NewStorageError("could not save the session", err)
		}
	}
	sess.State = st
	return view, nil
}

func imageView(g *GeneratedImageSurvey) *ImageSurveyView {
	pairs := make([]PairView, 0, len(g.Pairs))
	for i, p := range g.Pairs {
		pairs = append(pairs, PairView{
			Index:  i,
			Prompt: p.Prompt,
			ImageA: p.ImageA,
			ImageB: p.ImageB,
			Left:   fmt.Sprintf("/img/%d/l", i),
			Right:  fmt.Sprintf("/img/%d/r", i),
		})
	}
	return &ImageSurveyView{Pairs: pairs, TimeBarDuration: g.TimeBarDuration, DurationSeconds: g.DurationSeconds}
}

// Submit validates and stores the answers of the session's current step and
// advances the state machine. Nothing about the session changes on failure.
func (s *SessionService) Submit(ctx context.Context, sess *Session, surveyID string, body []byte) (*SubmitResult, error) {
	def, err := s.survey(surveyID)
	if err != nil {
		return nil, err
	}
	st := sess.State
	if st == nil || st.SurveyID != def.ID {
		return nil, NewSessionError("no active session, please start again from step 1")
	}
	switch st.Step {
	case StepOne:
	case StepTwo:
		if !def.RegularQuestionsEnabled {
			return nil, NewInvalidError("this survey has no step 2")
		}
		if !st.StepOneCompleted {
			return nil, NewSessionError("step 1 must be completed first")
		}
	default:
		return nil, NewSessionError("the survey is already completed")
	}

	var answers []json.RawMessage
	if err := json.Unmarshal(body, &answers); err != nil {
		return nil, NewInvalidError("The request does not have a proper body.")
	}

	next := st.clone()
	if contentFor(st.Step, st.QuestionsFirst) == ContentRegular {
		clean, err := ValidateRegularAnswers(def.RegularQuestions, answers)
		if err != nil {
			return nil, err
		}
		doc := &QuestionDocument{ParticipantID: st.ParticipantID, IsPanel: st.IsPanel, Answers: clean}
		if err := s.answers.SaveQuestionAnswers(ctx, def.ID, doc); err != nil {
			log.Printf("session: save question answers for %s: %v", def.ID, err)
			return nil, NewStorageError("There was an error with the database while saving your answers.", err)
		}
	} else {
		docs, err := ValidateImageAnswers(ImageBatch{
			Challenge:     st.Challenge,
			Cursor:        st.AnswerCursor,
			ParticipantID: st.ParticipantID,
			IsPanel:       st.IsPanel,
			Answers:       answers,
		})
		if err != nil {
			return nil, err
		}
		if err := s.answers.SaveImageAnswers(ctx, def.ID, docs); err != nil {
			log.Printf("session: save image answers for %s: %v", def.ID, err)
			return nil, NewStorageError("There was an error with the database while saving your answers.", err)
		}
		byIndex := make(map[int]*ImageDocument, len(docs))
		for _, d := range docs {
			byIndex[d.PairIndex] = d
		}
		log.Printf("[INFO] Failed attention checks: %d (participant %s)", CountFailedChecks(st.Challenge.AttentionChecks, byIndex), st.ParticipantID)
		next.AnswerCursor += len(docs)
	}

	if next.Step == StepOne {
		next.StepOneCompleted = true
		next.Step = StepTwo
		if !def.RegularQuestionsEnabled {
			next.Step = StepDone
		}
	} else {
		next.Step = StepDone
	}

	if next.Step == StepDone {
		s.clear(ctx, sess)
		return &SubmitResult{Next: StepDone, Done: true}, nil
	}
	if err := s.sessions.Save(ctx, sess.ID, next); err != nil {
		return nil, NewStorageError("could not save the session", err)
	}
	sess.State = next
	return &SubmitResult{Next: next.Step}, nil
}

// Finish clears the session once the thanks page is reached.
func (s *SessionService) Finish(ctx context.Context, sess *Session) {
	s.clear(ctx, sess)
}

// ImageFile resolves the file behind one side of a pair in the session's
// challenge. side is "l" or "r".
func (s *SessionService) ImageFile(sess *Session, index int, side string) (string, error) {
	if sess.State == nil || sess.State.Challenge == nil {
		return "", NewNotFoundError("no generated survey")
	}
	g := sess.State.Challenge
	if index < 0 || index >= len(g.Pairs) {
		return "", NewNotFoundError("image not found")
	}
	var name string
	switch side {
	case "l":
		name = g.Pairs[index].ImageA
	case "r":
		name = g.Pairs[index].ImageB
	default:
		return "", NewNotFoundError("image not found")
	}
	if name != filepath.Base(name) {
		return "", NewNotFoundError("image not found")
	}
	path := filepath.Join(g.DatasetPath, name)
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		return "", NewNotFoundError("image not found")
	}
	return path, nil
}
