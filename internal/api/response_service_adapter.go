package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soaringjerry/Pictopercept/internal/services"
)

// responseStoreAdapter writes validated answers into the survey's
// "<id>_questions" and "<id>_images" collections.
type responseStoreAdapter struct {
	store   Store
	surveys services.SurveyLookup
}

func newResponseStoreAdapter(store Store, surveys services.SurveyLookup) services.AnswerStore {
	return &responseStoreAdapter{store: store, surveys: surveys}
}

func (a *responseStoreAdapter) survey(id string) (*services.SurveyDefinition, error) {
	def, ok := a.surveys.Survey(id)
	if !ok {
		return nil, fmt.Errorf("unknown survey %q", id)
	}
	return def, nil
}

func (a *responseStoreAdapter) SaveQuestionAnswers(ctx context.Context, surveyID string, doc *services.QuestionDocument) error {
	def, err := a.survey(surveyID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return a.store.InsertMany(ctx, def.QuestionsCollection(), []Document{{ParticipantID: doc.ParticipantID, Body: body}})
}

func (a *responseStoreAdapter) SaveImageAnswers(ctx context.Context, surveyID string, docs []*services.ImageDocument) error {
	def, err := a.survey(surveyID)
	if err != nil {
		return err
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		body, err := json.Marshal(d)
		if err != nil {
			return err
		}
		out = append(out, Document{ParticipantID: d.ParticipantID, Body: body})
	}
	return a.store.InsertMany(ctx, def.ImagesCollection(), out)
}

var _ services.AnswerStore = (*responseStoreAdapter)(nil)
