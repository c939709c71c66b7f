package services

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ImageChoice is one side of an answered pair.
type ImageChoice struct {
	Image  string `json:"image"`
	Chosen bool   `json:"chosen"`
}

// ImageDocument is the stored record of one validated pair answer.
type ImageDocument struct {
	ParticipantID  string         `json:"participant_id"`
	IsPanel        bool           `json:"is_panel"`
	PairIndex      int            `json:"pair_index"`
	AttentionOf    *int           `json:"attention_of,omitempty"`
	Images         [2]ImageChoice `json:"images"`
	SecondsTaken   *float64       `json:"seconds_taken,omitempty"`
	TimeBarEnabled bool           `json:"time_bar_enabled"`
}

// QuestionDocument is the stored record of a participant's regular answers.
type QuestionDocument struct {
	ParticipantID string        `json:"participant_id"`
	IsPanel       bool          `json:"is_panel"`
	Answers       []CleanAnswer `json:"answers"`
}

type postedChoice struct {
	Image  *string `json:"image"`
	Chosen *bool   `json:"chosen"`
}

type postedPair struct {
	Images         []postedChoice `json:"images"`
	SecondsTaken   *float64       `json:"seconds_taken"`
	TimeBarEnabled *bool          `json:"time_bar_enabled"`
	// Client supplied ids are accepted syntactically and discarded.
	UserID json.RawMessage `json:"userId,omitempty"`
}

// ImageBatch is the input to ValidateImageAnswers.
type ImageBatch struct {
	Challenge     *GeneratedImageSurvey
	Cursor        int
	ParticipantID string
	IsPanel       bool
	Answers       []json.RawMessage
}

func rejectBatch(reason string, args ...any) error {
	return NewInvalidError("Error validating the answers: " + fmt.Sprintf(reason, args...))
}

// ValidateImageAnswers checks a posted batch against the challenge set from
// the batch cursor onward. Either every answer is valid and one document per
// answer is returned, or the whole batch is rejected.
func ValidateImageAnswers(b ImageBatch) ([]*ImageDocument, error) {
	if b.Challenge == nil {
		return nil, NewSessionError("no image survey was issued for this session")
	}
	if len(b.Answers) == 0 {
		return nil, rejectBatch("no answers were sent")
	}
	if b.Cursor < 0 || b.Cursor+len(b.Answers) > len(b.Challenge.Pairs) {
		return nil, rejectBatch("more answers than questions")
	}
	timer := b.Challenge.TimerEnabled()
	docs := make([]*ImageDocument, 0, len(b.Answers))
	for i, raw := range b.Answers {
		var in postedPair
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return nil, rejectBatch("the answer format is wrong")
		}
		if len(in.Images) != 2 {
			return nil, rejectBatch("the answer format is wrong")
		}
		for _, c := range in.Images {
			if c.Image == nil || c.Chosen == nil {
				return nil, rejectBatch("the answer format is wrong")
			}
		}
		a, c := in.Images[0], in.Images[1]
		if *a.Chosen == *c.Chosen {
			return nil, rejectBatch("exactly one image must be chosen")
		}
		idx := b.Cursor + i
		want := b.Challenge.Pairs[idx]
		if *a.Image != want.ImageA || *c.Image != want.ImageB {
			return nil, rejectBatch("the answers provided do not match with the user-specific ones")
		}
		if in.TimeBarEnabled != nil && *in.TimeBarEnabled != timer {
			return nil, rejectBatch("the answers provided do not match with the user-specific ones")
		}
		if in.SecondsTaken != nil && *in.SecondsTaken < 0 {
			return nil, rejectBatch("the answer format is wrong")
		}
		doc := &ImageDocument{
			ParticipantID: b.ParticipantID,
			IsPanel:       b.IsPanel,
			PairIndex:     idx,
			Images: [2]ImageChoice{
				{Image: *a.Image, Chosen: *a.Chosen},
				{Image: *c.Image, Chosen: *c.Chosen},
			},
			SecondsTaken:   in.SecondsTaken,
			TimeBarEnabled: timer,
		}
		if orig, ok := b.Challenge.AttentionOf(idx); ok {
			doc.AttentionOf = &orig
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
