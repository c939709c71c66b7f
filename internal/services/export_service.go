package services

import (
	"context"
	"sort"

	"golang.org/x/crypto/bcrypt"
)

type ExportMode string

const (
	ExportAll        ExportMode = "all"
	ExportImagesOnly ExportMode = "images_only"
)

const (
	DefaultChunkSize = 100
	MinChunkSize     = 50
	MaxChunkSize     = 300
)

// JoinedRecord is one question document with every image document that
// shares its participant id.
type JoinedRecord struct {
	Questions *QuestionDocument
	Images    []*ImageDocument
}

type ExportStore interface {
	JoinedPage(ctx context.Context, surveyID string, skip, limit int) ([]*JoinedRecord, error)
	ImagePage(ctx context.Context, surveyID string, skip, limit int) ([]*ImageDocument, error)
}

type ExportParams struct {
	Pass      string
	SurveyID  string
	ChunkSize int
	Mode      ExportMode
}

// ExportedImage is an image answer inside a joined record, without the
// fields already present on the record itself.
type ExportedImage struct {
	PairIndex      int            `json:"pair_index"`
	AttentionOf    *int           `json:"attention_of,omitempty"`
	Images         [2]ImageChoice `json:"images"`
	SecondsTaken   *float64       `json:"seconds_taken,omitempty"`
	TimeBarEnabled bool           `json:"time_bar_enabled"`
}

type ExportRecord struct {
	ParticipantID         string          `json:"participant_id"`
	IsPanel               bool            `json:"is_panel"`
	Answers               []CleanAnswer   `json:"answers"`
	Images                []ExportedImage `json:"images"`
	FailedAttentionChecks int             `json:"failed_attention_checks"`
}

type ExportService struct {
	surveys  SurveyLookup
	store    ExportStore
	passHash []byte
}

// NewExportService hashes the fetch password once; requests are compared
// against the hash.
func NewExportService(surveys SurveyLookup, store ExportStore, password string) (*ExportService, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &ExportService{surveys: surveys, store: store, passHash: hash}, nil
}

// Prepare checks credentials and parameters before anything is written.
func (s *ExportService) Prepare(p ExportParams) (ExportParams, error) {
	if bcrypt.CompareHashAndPassword(s.passHash, []byte(p.Pass)) != nil {
		return p, NewForbiddenError("forbidden")
	}
	if _, ok := s.surveys.Survey(p.SurveyID); !ok {
		return p, NewNotFoundError("survey not found")
	}
	if p.ChunkSize == 0 {
		p.ChunkSize = DefaultChunkSize
	}
	if p.ChunkSize < MinChunkSize || p.ChunkSize > MaxChunkSize {
		return p, NewInvalidError("chunk_size must be between 50 and 300")
	}
	switch p.Mode {
	case "":
		p.Mode = ExportAll
	case ExportAll, ExportImagesOnly:
	default:
		return p, NewInvalidError("unsupported mode")
	}
	return p, nil
}

// Stream pages through the survey's answers and hands every record to emit.
// flush is called after each complete chunk; records are never split.
func (s *ExportService) Stream(ctx context.Context, p ExportParams, emit func(v any) error, flush func()) error {
	for skip := 0; ; skip += p.ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int
		if p.Mode == ExportImagesOnly {
			docs, err := s.store.ImagePage(ctx, p.SurveyID, skip, p.ChunkSize)
			if err != nil {
				return NewStorageError("export failed", err)
			}
			for _, d := range docs {
				if err := emit(d); err != nil {
					return err
				}
			}
			n = len(docs)
		} else {
			recs, err := s.store.JoinedPage(ctx, p.SurveyID, skip, p.ChunkSize)
			if err != nil {
				return NewStorageError("export failed", err)
			}
			for _, r := range recs {
				out, ok := BuildExportRecord(r)
				if !ok {
					continue
				}
				if err := emit(out); err != nil {
					return err
				}
			}
			n = len(recs)
		}
		flush()
		if n < p.ChunkSize {
			return nil
		}
	}
}

// BuildExportRecord merges a joined record into its exported shape. Records
// without image answers belong to participants who never finished and are
// dropped. Retried submissions may have stored a pair twice; the first copy
// wins.
func BuildExportRecord(r *JoinedRecord) (*ExportRecord, bool) {
	if r == nil || r.Questions == nil || len(r.Images) == 0 {
		return nil, false
	}
	seen := map[int]bool{}
	unique := make([]*ImageDocument, 0, len(r.Images))
	for _, d := range r.Images {
		if seen[d.PairIndex] {
			continue
		}
		seen[d.PairIndex] = true
		unique = append(unique, d)
	}
	sort.SliceStable(unique, func(i, j int) bool { return unique[i].PairIndex < unique[j].PairIndex })

	out := &ExportRecord{
		ParticipantID:         r.Questions.ParticipantID,
		IsPanel:               r.Questions.IsPanel,
		Answers:               r.Questions.Answers,
		Images:                make([]ExportedImage, 0, len(unique)),
		FailedAttentionChecks: FailedAttentionChecks(unique),
	}
	if out.Answers == nil {
		out.Answers = []CleanAnswer{}
	}
	for _, d := range unique {
		out.Images = append(out.Images, ExportedImage{
			PairIndex:      d.PairIndex,
			AttentionOf:    d.AttentionOf,
			Images:         d.Images,
			SecondsTaken:   d.SecondsTaken,
			TimeBarEnabled: d.TimeBarEnabled,
		})
	}
	return out, true
}
