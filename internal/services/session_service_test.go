package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubSurveys map[string]*SurveyDefinition

func (s stubSurveys) Survey(id string) (*SurveyDefinition, bool) {
	d, ok := s[id]
	return d, ok
}

type stubSessionStore struct {
	states  map[string]*SessionState
	saveErr error
	deletes int
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{states: map[string]*SessionState{}}
}

func (s *stubSessionStore) Load(_ context.Context, sid string) (*SessionState, error) {
	if st, ok := s.states[sid]; ok {
		return st.clone(), nil
	}
	return nil, nil
}

func (s *stubSessionStore) Save(_ context.Context, sid string, st *SessionState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[sid] = st.clone()
	return nil
}

func (s *stubSessionStore) Delete(_ context.Context, sid string) error {
	s.deletes++
	delete(s.states, sid)
	return nil
}

type stubAnswerStore struct {
	questions []*QuestionDocument
	images    []*ImageDocument
	err       error
}

func (s *stubAnswerStore) SaveQuestionAnswers(_ context.Context, _ string, doc *QuestionDocument) error {
	if s.err != nil {
		return s.err
	}
	s.questions = append(s.questions, doc)
	return nil
}

func (s *stubAnswerStore) SaveImageAnswers(_ context.Context, _ string, docs []*ImageDocument) error {
	if s.err != nil {
		return s.err
	}
	s.images = append(s.images, docs...)
	return nil
}

type sessionFixture struct {
	svc      *SessionService
	sessions *stubSessionStore
	answers  *stubAnswerStore
	defs     stubSurveys
}

func newSessionFixture(t *testing.T, regular bool) *sessionFixture {
	t.Helper()
	def := &SurveyDefinition{
		ID:              "faces",
		AccentColor:     "#123456",
		Pool:            testPool(t),
		Prompts:         []string{"doctor"},
		PairsPerPrompt:  4,
		AttentionChecks: 4,
		AnswerTimer:     AnswerTimerConfig{Mode: TimerNever},
		DatasetPath:     t.TempDir(),
	}
	if regular {
		def.RegularQuestionsEnabled = true
		def.RegularQuestions = []RegularQuestion{SingleChoice("Hand", false, "Left", "Right")}
	}
	require.NoError(t, def.Validate())
	f := &sessionFixture{
		sessions: newStubSessionStore(),
		answers:  &stubAnswerStore{},
		defs:     stubSurveys{"faces": def},
	}
	f.svc = NewSessionService(f.defs, f.sessions, f.answers)
	f.svc.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	f.svc.idGenerator = func() string { return "generated01" }
	var seed uint64
	f.svc.newRand = func() *rand.Rand {
		seed++
		return rand.New(rand.NewPCG(seed, 99))
	}
	return f
}

// answerAll builds a valid batch for every remaining pair of the challenge.
func answerAll(st *SessionState) []byte {
	var parts []string
	for _, p := range st.Challenge.Pairs[st.AnswerCursor:] {
		parts = append(parts, string(pairAnswer(p.ImageA, p.ImageB, true, "")))
	}
	return []byte("[" + strings.Join(parts, ",") + "]")
}

func TestEnterCreatesSessionAndChallenge(t *testing.T) {
	f := newSessionFixture(t, false)
	sess := &Session{ID: "sid"}

	view, err := f.svc.Enter(context.Background(), sess, EnterRequest{SurveyID: "faces", PanelID: " PANEL-7 "})
	require.NoError(t, err)
	require.Equal(t, StepOne, view.Step)
	require.Equal(t, ContentImages, view.Kind)
	require.Equal(t, "#123456", view.AccentColor)
	require.Len(t, view.Images.Pairs, 4+4)
	require.Equal(t, "/img/0/l", view.Images.Pairs[0].Left)

	st := f.sessions.states["sid"]
	require.NotNil(t, st)
	require.Equal(t, "PANEL-7", st.ParticipantID)
	require.True(t, st.IsPanel)
	require.NotNil(t, st.Challenge)

	again, err := f.svc.Enter(context.Background(), &Session{ID: "sid", State: st.clone()}, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	require.Equal(t, view.Images.Pairs, again.Images.Pairs)
}

func TestEnterTruncatesPanelID(t *testing.T) {
	f := newSessionFixture(t, false)
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(context.Background(), sess, EnterRequest{SurveyID: "faces", PanelID: strings.Repeat("x", 100)})
	require.NoError(t, err)
	require.Len(t, sess.State.ParticipantID, MaxParticipantIDLen)
}

func TestEnterGeneratesParticipantID(t *testing.T) {
	f := newSessionFixture(t, false)
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(context.Background(), sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	require.Equal(t, "generated01", sess.State.ParticipantID)
	require.False(t, sess.State.IsPanel)
}

func TestEnterUnknownSurvey(t *testing.T) {
	f := newSessionFixture(t, false)
	_, err := f.svc.Enter(context.Background(), &Session{ID: "sid"}, EnterRequest{SurveyID: "nope"})
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorNotFound, se.Code)
}

func TestEnterStepTwoWithoutSession(t *testing.T) {
	f := newSessionFixture(t, true)
	_, err := f.svc.Enter(context.Background(), &Session{ID: "sid"}, EnterRequest{SurveyID: "faces", Step: StepTwo})
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorSession, se.Code)
}

func TestEnterStepTwoDisabledRedirectsToDone(t *testing.T) {
	f := newSessionFixture(t, false)
	view, err := f.svc.Enter(context.Background(), &Session{ID: "sid"}, EnterRequest{SurveyID: "faces", Step: StepTwo})
	require.NoError(t, err)
	require.True(t, view.Done)
}

func TestImageOnlyFlow(t *testing.T) {
	f := newSessionFixture(t, false)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, sess, "faces", answerAll(sess.State))
	require.NoError(t, err)
	require.True(t, res.Done)
	require.Equal(t, StepDone, res.Next)
	require.Len(t, f.answers.images, 8)
	require.Empty(t, f.answers.questions)
	require.Nil(t, sess.State)
	require.Empty(t, f.sessions.states)
}

func TestTwoStepFlow(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	view, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)

	submitFor := func(kind string) []byte {
		if kind == ContentRegular {
			return []byte(`[{"checkedAnswer":1}]`)
		}
		return answerAll(sess.State)
	}

	res, err := f.svc.Submit(ctx, sess, "faces", submitFor(view.Kind))
	require.NoError(t, err)
	require.Equal(t, StepTwo, res.Next)
	require.True(t, sess.State.StepOneCompleted)

	// revisiting step 1 after completing it serves step 2
	back, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces", Step: StepOne})
	require.NoError(t, err)
	require.Equal(t, StepTwo, back.Step)
	require.NotEqual(t, view.Kind, back.Kind)

	res, err = f.svc.Submit(ctx, sess, "faces", submitFor(back.Kind))
	require.NoError(t, err)
	require.True(t, res.Done)
	require.Len(t, f.answers.questions, 1)
	require.Equal(t, "Right", f.answers.questions[0].Answers[0]["checked_answer"])
	require.Len(t, f.answers.images, 8)
	require.Equal(t, f.answers.questions[0].ParticipantID, f.answers.images[0].ParticipantID)
}

func TestSubmitWithoutSession(t *testing.T) {
	f := newSessionFixture(t, false)
	_, err := f.svc.Submit(context.Background(), &Session{ID: "sid"}, "faces", []byte(`[]`))
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorSession, se.Code)
}

func TestSubmitBadBodyKeepsState(t *testing.T) {
	f := newSessionFixture(t, false)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	before := sess.State.clone()

	_, err = f.svc.Submit(ctx, sess, "faces", []byte(`{not json`))
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, "The request does not have a proper body.", se.Message)

	_, err = f.svc.Submit(ctx, sess, "faces", []byte(`[{"images":[]}]`))
	require.Error(t, err)
	require.Equal(t, before, sess.State)
	require.Empty(t, f.answers.images)
}

func TestSubmitStorageFailureKeepsState(t *testing.T) {
	f := newSessionFixture(t, false)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)

	f.answers.err = errors.New("disk full")
	_, err = f.svc.Submit(ctx, sess, "faces", answerAll(sess.State))
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorStorage, se.Code)
	require.Equal(t, StepOne, sess.State.Step)
	require.Zero(t, sess.State.AnswerCursor)

	f.answers.err = nil
	res, err := f.svc.Submit(ctx, sess, "faces", answerAll(sess.State))
	require.NoError(t, err)
	require.True(t, res.Done)
}

func TestSubmitRegularSoftErrors(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	view, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	if view.Kind != ContentRegular {
		_, err = f.svc.Submit(ctx, sess, "faces", answerAll(sess.State))
		require.NoError(t, err)
	}

	_, err = f.svc.Submit(ctx, sess, "faces", []byte(`[{}]`))
	var qerrs QuestionErrors
	require.True(t, errors.As(err, &qerrs))
	require.Equal(t, "You must check one option.", qerrs["0"])
	require.Empty(t, f.answers.questions)
}

func TestEnterRestartResetsSession(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	sess.State.StepOneCompleted = true
	sess.State.Step = StepTwo

	view, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces", Restart: true})
	require.NoError(t, err)
	require.Equal(t, StepOne, view.Step)
	require.False(t, sess.State.StepOneCompleted)
}

func TestImageFile(t *testing.T) {
	f := newSessionFixture(t, false)
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(context.Background(), sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)

	dir := sess.State.Challenge.DatasetPath
	left := sess.State.Challenge.Pairs[0].ImageA
	require.NoError(t, os.WriteFile(filepath.Join(dir, left), []byte("jpg"), 0o644))

	path, err := f.svc.ImageFile(sess, 0, "l")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, left), path)

	for _, tc := range []struct {
		idx  int
		side string
	}{{-1, "l"}, {len(sess.State.Challenge.Pairs), "l"}, {0, "x"}} {
		_, err := f.svc.ImageFile(sess, tc.idx, tc.side)
		se, ok := AsServiceError(err)
		require.True(t, ok, fmt.Sprintf("%d/%s", tc.idx, tc.side))
		require.Equal(t, ErrorNotFound, se.Code)
	}

	_, err = f.svc.ImageFile(&Session{}, 0, "l")
	require.Error(t, err)
}

func TestSessionStateJSON(t *testing.T) {
	st := &SessionState{ParticipantID: "p", SurveyID: "faces", Step: StepTwo, StepOneCompleted: true}
	b, err := json.Marshal(st)
	require.NoError(t, err)
	require.Contains(t, string(b), `"step_1_completed":true`)
	var back SessionState
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, st.Step, back.Step)
}

func TestEnterSaveFailure(t *testing.T) {
	f := newSessionFixture(t, false)
	f.sessions.saveErr = errors.New("redis down")
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(context.Background(), sess, EnterRequest{SurveyID: "faces"})
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorStorage, se.Code)
	require.Nil(t, sess.State)
}

func TestFinishClearsSession(t *testing.T) {
	f := newSessionFixture(t, false)
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(context.Background(), sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	f.svc.Finish(context.Background(), sess)
	require.Nil(t, sess.State)
	require.Equal(t, 1, f.sessions.deletes)
	require.Empty(t, f.sessions.states)
}

func TestSubmitStepTwoBeforeStepOne(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	sess.State.Step = StepTwo
	sess.State.StepOneCompleted = false
	before := sess.State.clone()

	_, err = f.svc.Submit(ctx, sess, "faces", []byte(`[{"checkedAnswer":1}]`))
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorSession, se.Code)
	require.Equal(t, "step 1 must be completed first", se.Message)
	require.Equal(t, before, sess.State)
	require.Empty(t, f.answers.questions)
	require.Empty(t, f.answers.images)
}

func TestEnterStepTwoWhileStepOneOpen(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	before := sess.State.clone()
	stored := f.sessions.states["sid"].clone()

	_, err = f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces", Step: StepTwo})
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorSession, se.Code)
	require.Equal(t, before, sess.State)
	require.Equal(t, stored, f.sessions.states["sid"])
}

func TestSubmitStepTwoWhenSurveyHasNone(t *testing.T) {
	f := newSessionFixture(t, false)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	sess.State.Step = StepTwo
	sess.State.StepOneCompleted = true
	before := sess.State.clone()

	_, err = f.svc.Submit(ctx, sess, "faces", answerAll(sess.State))
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorInvalid, se.Code)
	require.Equal(t, "this survey has no step 2", se.Message)
	require.Equal(t, before, sess.State)
	require.Empty(t, f.answers.images)
}

func TestSubmitRejectsWholeBatchOnLaterMismatch(t *testing.T) {
	f := newSessionFixture(t, false)
	ctx := context.Background()
	sess := &Session{ID: "sid"}
	_, err := f.svc.Enter(ctx, sess, EnterRequest{SurveyID: "faces"})
	require.NoError(t, err)
	before := sess.State.clone()

	p0, p1 := sess.State.Challenge.Pairs[0], sess.State.Challenge.Pairs[1]
	body := "[" + string(pairAnswer(p0.ImageA, p0.ImageB, true, "")) + "," +
		string(pairAnswer(p1.ImageB, p1.ImageA, true, "")) + "]"
	_, err = f.svc.Submit(ctx, sess, "faces", []byte(body))
	se, ok := AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, ErrorInvalid, se.Code)
	require.Empty(t, f.answers.images)
	require.Equal(t, before, sess.State)
}
