package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soaringjerry/Pictopercept/internal/services"
)

type exportStoreAdapter struct {
	store   Store
	surveys services.SurveyLookup
}

func newExportStoreAdapter(store Store, surveys services.SurveyLookup) services.ExportStore {
	return &exportStoreAdapter{store: store, surveys: surveys}
}

func (a *exportStoreAdapter) survey(id string) (*services.SurveyDefinition, error) {
	def, ok := a.surveys.Survey(id)
	if !ok {
		return nil, fmt.Errorf("unknown survey %q", id)
	}
	return def, nil
}

func decodeImage(d Document) (*services.ImageDocument, error) {
	var img services.ImageDocument
	if err := json.Unmarshal(d.Body, &img); err != nil {
		return nil, fmt.Errorf("decode image document %d: %w", d.ID, err)
	}
	return &img, nil
}

func (a *exportStoreAdapter) JoinedPage(ctx context.Context, surveyID string, skip, limit int) ([]*services.JoinedRecord, error) {
	def, err := a.survey(surveyID)
	if err != nil {
		return nil, err
	}
	joined, err := a.store.AggregateJoin(ctx, def.QuestionsCollection(), def.ImagesCollection(), skip, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*services.JoinedRecord, 0, len(joined))
	for _, j := range joined {
		var q services.QuestionDocument
		if err := json.Unmarshal(j.Left.Body, &q); err != nil {
			return nil, fmt.Errorf("decode question document %d: %w", j.Left.ID, err)
		}
		rec := &services.JoinedRecord{Questions: &q}
		for _, r := range j.Right {
			img, err := decodeImage(r)
			if err != nil {
				return nil, err
			}
			rec.Images = append(rec.Images, img)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *exportStoreAdapter) ImagePage(ctx context.Context, surveyID string, skip, limit int) ([]*services.ImageDocument, error) {
	def, err := a.survey(surveyID)
	if err != nil {
		return nil, err
	}
	docs, err := a.store.FindPage(ctx, def.ImagesCollection(), skip, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*services.ImageDocument, 0, len(docs))
	for _, d := range docs {
		img, err := decodeImage(d)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

var _ services.ExportStore = (*exportStoreAdapter)(nil)
