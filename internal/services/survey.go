package services

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

type TimerMode string

const (
	TimerAlways TimerMode = "always"
	TimerNever  TimerMode = "never"
	TimerRandom TimerMode = "random"
)

// AnswerTimerConfig controls the per-answer time bar shown during the image block.
type AnswerTimerConfig struct {
	Mode     TimerMode `json:"mode"`
	Duration int       `json:"duration"`
}

// ShouldUse resolves the timer for one session. Random mode is a fair coin flip.
func (t AnswerTimerConfig) ShouldUse(rng *rand.Rand) bool {
	switch t.Mode {
	case TimerAlways:
		return true
	case TimerRandom:
		return rng.IntN(2) == 1
	default:
		return false
	}
}

const (
	DefaultPairsPerPrompt  = 8
	DefaultAttentionChecks = 6
)

// SurveyDefinition is built once at process start and never mutated afterwards.
type SurveyDefinition struct {
	ID                      string
	Description             string
	AccentColor             string
	AnswerTimer             AnswerTimerConfig
	DurationSeconds         *int
	DatasetPath             string
	RegularQuestionsEnabled bool
	RegularQuestions        []RegularQuestion

	Pool            *ImagePool
	Prompts         []string
	PairsPerPrompt  int
	AttentionChecks int
}

// QuestionsCollection and ImagesCollection name the two document collections
// a survey writes to.
func (s *SurveyDefinition) QuestionsCollection() string { return s.ID + "_questions" }
func (s *SurveyDefinition) ImagesCollection() string    { return s.ID + "_images" }

// Validate reports configuration problems. Any error here is fatal at startup.
func (s *SurveyDefinition) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("survey id required")
	}
	switch s.AnswerTimer.Mode {
	case TimerAlways, TimerNever, TimerRandom:
	default:
		return fmt.Errorf("survey %s: unknown answer timer mode %q", s.ID, s.AnswerTimer.Mode)
	}
	if s.AnswerTimer.Mode != TimerNever && s.AnswerTimer.Duration <= 0 {
		return fmt.Errorf("survey %s: answer timer duration must be positive", s.ID)
	}
	if s.DurationSeconds != nil && *s.DurationSeconds <= 0 {
		return fmt.Errorf("survey %s: duration must be positive", s.ID)
	}
	if s.Pool == nil || s.Pool.Empty() {
		return fmt.Errorf("survey %s: image pool is empty", s.ID)
	}
	if len(s.Prompts) == 0 {
		return fmt.Errorf("survey %s: no prompts configured", s.ID)
	}
	if s.PairsPerPrompt <= 0 {
		return fmt.Errorf("survey %s: pairs per prompt must be positive", s.ID)
	}
	if s.AttentionChecks < 0 {
		return fmt.Errorf("survey %s: attention checks must not be negative", s.ID)
	}
	if s.RegularQuestionsEnabled && len(s.RegularQuestions) == 0 {
		return fmt.Errorf("survey %s: regular questions enabled but none defined", s.ID)
	}
	for i, q := range s.RegularQuestions {
		if err := q.check(); err != nil {
			return fmt.Errorf("survey %s: question %d: %w", s.ID, i, err)
		}
	}
	return nil
}
