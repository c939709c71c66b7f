package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "MultipleChoice"
	KindSingleChoice   QuestionKind = "SingleChoice"
	KindMatrix         QuestionKind = "Matrix"
	KindAgreementScale QuestionKind = "AgreementScale"
	KindOpenShort      QuestionKind = "OpenShort"
)

// Matrix rows and agreement scales share a five point range.
const (
	scaleMin = 0
	scaleMax = 4

	defaultOtherMin = 3
	defaultOtherMax = 20
)

var agreementLabels = [...]string{"Strongly disagree", "Disagree", "Neutral", "Agree", "Strongly agree"}

// RegularQuestion is one closed or open survey question. Kind selects which
// of the remaining fields are meaningful.
type RegularQuestion struct {
	Kind         QuestionKind `json:"kind"`
	Title        string       `json:"title"`
	Options      []string     `json:"options,omitempty"`
	OtherEnabled bool         `json:"other_enabled,omitempty"`
	MinLen       int          `json:"min_len,omitempty"`
	MaxLen       int          `json:"max_len,omitempty"`
}

// CleanAnswer is the normalized record stored for one regular question.
type CleanAnswer map[string]any

func MultipleChoice(title string, otherEnabled bool, options ...string) RegularQuestion {
	return RegularQuestion{Kind: KindMultipleChoice, Title: title, OtherEnabled: otherEnabled, Options: options, MinLen: defaultOtherMin, MaxLen: defaultOtherMax}
}

func SingleChoice(title string, otherEnabled bool, options ...string) RegularQuestion {
	return RegularQuestion{Kind: KindSingleChoice, Title: title, OtherEnabled: otherEnabled, Options: options, MinLen: defaultOtherMin, MaxLen: defaultOtherMax}
}

// Matrix asks for one 0..4 rating per row; rows are stored in Options.
func Matrix(title string, rows ...string) RegularQuestion {
	return RegularQuestion{Kind: KindMatrix, Title: title, Options: rows}
}

func AgreementScale(title string) RegularQuestion {
	return RegularQuestion{Kind: KindAgreementScale, Title: title}
}

func OpenShort(title string, minLen, maxLen int) RegularQuestion {
	return RegularQuestion{Kind: KindOpenShort, Title: title, MinLen: minLen, MaxLen: maxLen}
}

func (q RegularQuestion) check() error {
	if strings.TrimSpace(q.Title) == "" {
		return errors.New("title required")
	}
	switch q.Kind {
	case KindMultipleChoice, KindSingleChoice, KindMatrix:
		if len(q.Options) == 0 {
			return fmt.Errorf("%s requires options", q.Kind)
		}
	case KindAgreementScale:
		return nil
	case KindOpenShort:
	default:
		return fmt.Errorf("unknown question kind %q", q.Kind)
	}
	if q.Kind != KindMatrix && (q.MinLen < 0 || q.MaxLen < q.MinLen) {
		return fmt.Errorf("invalid length bounds [%d,%d]", q.MinLen, q.MaxLen)
	}
	return nil
}

// Validate checks one raw answer. It returns either a clean answer or a soft
// message for the participant; a non-nil error means the payload could not
// have come from the survey page and the whole post is rejected.
func (q RegularQuestion) Validate(raw json.RawMessage) (CleanAnswer, string, error) {
	var (
		clean CleanAnswer
		msg   string
		err   error
	)
	switch q.Kind {
	case KindMultipleChoice:
		clean, msg, err = q.validateMultipleChoice(raw)
	case KindSingleChoice:
		clean, msg, err = q.validateSingleChoice(raw)
	case KindMatrix:
		clean, msg, err = q.validateMatrix(raw)
	case KindAgreementScale:
		clean, msg, err = q.validateAgreementScale(raw)
	case KindOpenShort:
		clean, msg, err = q.validateOpenShort(raw)
	default:
		err = fmt.Errorf("unknown question kind %q", q.Kind)
	}
	if err != nil || msg != "" {
		return nil, msg, err
	}
	clean["kind"] = string(q.Kind)
	return clean, "", nil
}

func decodeStrict(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (q RegularQuestion) optionAt(idx int) (string, error) {
	if idx < 0 || idx >= len(q.Options) {
		return "", fmt.Errorf("option index %d out of range", idx)
	}
	return q.Options[idx], nil
}

// checkOther applies the trimmed-length rules to an "other" text entry.
func (q RegularQuestion) checkOther(text string) (string, string, error) {
	if !q.OtherEnabled {
		return "", "", errors.New("other answer not enabled")
	}
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return "", `You must fill the "other" text field if you selected it.`, nil
	}
	if n < q.MinLen || n > q.MaxLen {
		return "", fmt.Sprintf(`Your "other" answer must be between %d-%d characters length.`, q.MinLen, q.MaxLen), nil
	}
	return text, "", nil
}

func (q RegularQuestion) validateMultipleChoice(raw json.RawMessage) (CleanAnswer, string, error) {
	var in struct {
		CheckedAnswers []int   `json:"checkedAnswers"`
		OtherAnswer    *string `json:"otherAnswer"`
	}
	if err := decodeStrict(raw, &in); err != nil {
		return nil, "", err
	}
	if len(in.CheckedAnswers) == 0 && in.OtherAnswer == nil {
		return nil, "You must check at least one option.", nil
	}
	seen := make(map[int]bool, len(in.CheckedAnswers))
	checked := make([]string, 0, len(in.CheckedAnswers))
	for _, idx := range in.CheckedAnswers {
		if seen[idx] {
			return nil, "", fmt.Errorf("option index %d repeated", idx)
		}
		seen[idx] = true
		label, err := q.optionAt(idx)
		if err != nil {
			return nil, "", err
		}
		checked = append(checked, label)
	}
	var other any
	if in.OtherAnswer != nil {
		text, msg, err := q.checkOther(*in.OtherAnswer)
		if err != nil || msg != "" {
			return nil, msg, err
		}
		other = text
	}
	return CleanAnswer{"checked_answers": checked, "other_answer": other}, "", nil
}

func (q RegularQuestion) validateSingleChoice(raw json.RawMessage) (CleanAnswer, string, error) {
	var in struct {
		CheckedAnswer *int    `json:"checkedAnswer"`
		OtherAnswer   *string `json:"otherAnswer"`
	}
	if err := decodeStrict(raw, &in); err != nil {
		return nil, "", err
	}
	switch {
	case in.CheckedAnswer == nil && in.OtherAnswer == nil:
		return nil, "You must check one option.", nil
	case in.CheckedAnswer != nil && in.OtherAnswer != nil:
		return nil, "", errors.New("both an option and an other answer were sent")
	case in.CheckedAnswer != nil:
		label, err := q.optionAt(*in.CheckedAnswer)
		if err != nil {
			return nil, "", err
		}
		return CleanAnswer{"checked_answer": label, "other_answer": nil}, "", nil
	default:
		text, msg, err := q.checkOther(*in.OtherAnswer)
		if err != nil || msg != "" {
			return nil, msg, err
		}
		return CleanAnswer{"checked_answer": nil, "other_answer": text}, "", nil
	}
}

func (q RegularQuestion) validateMatrix(raw json.RawMessage) (CleanAnswer, string, error) {
	var in struct {
		CheckedAnswers []int `json:"checkedAnswers"`
	}
	if err := decodeStrict(raw, &in); err != nil {
		return nil, "", err
	}
	if len(in.CheckedAnswers) > len(q.Options) {
		return nil, "", fmt.Errorf("%d rows answered, matrix has %d", len(in.CheckedAnswers), len(q.Options))
	}
	if len(in.CheckedAnswers) == 0 || len(in.CheckedAnswers) < len(q.Options) {
		return nil, "You must answer all rows.", nil
	}
	out := make([]int, 0, len(in.CheckedAnswers))
	for _, v := range in.CheckedAnswers {
		if v < scaleMin || v > scaleMax {
			return nil, "", fmt.Errorf("matrix value %d out of range", v)
		}
		out = append(out, v)
	}
	return CleanAnswer{"checked_answers": out}, "", nil
}

func (q RegularQuestion) validateAgreementScale(raw json.RawMessage) (CleanAnswer, string, error) {
	var in struct {
		CheckedAnswer *int `json:"checkedAnswer"`
	}
	if err := decodeStrict(raw, &in); err != nil {
		return nil, "", err
	}
	if in.CheckedAnswer == nil {
		return nil, "You must choose one option.", nil
	}
	v := *in.CheckedAnswer
	if v < scaleMin || v > scaleMax {
		return nil, "", fmt.Errorf("agreement value %d out of range", v)
	}
	return CleanAnswer{"checked_answer": agreementLabels[v]}, "", nil
}

func (q RegularQuestion) validateOpenShort(raw json.RawMessage) (CleanAnswer, string, error) {
	var in struct {
		AnswerText *string `json:"answerText"`
	}
	if err := decodeStrict(raw, &in); err != nil {
		return nil, "", err
	}
	if in.AnswerText == nil {
		return nil, "", errors.New("answerText missing")
	}
	text := strings.TrimSpace(*in.AnswerText)
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil, "You must answer this question.", nil
	}
	if n < q.MinLen || n > q.MaxLen {
		return nil, fmt.Sprintf("Your answer must be between %d-%d characters length.", q.MinLen, q.MaxLen), nil
	}
	return CleanAnswer{"answer_text": text}, "", nil
}

// ValidateRegularAnswers validates every answer independently. The post is
// accepted only when all of them pass; otherwise a QuestionErrors map or a
// hard format error is returned and nothing should be stored.
func ValidateRegularAnswers(questions []RegularQuestion, answers []json.RawMessage) ([]CleanAnswer, error) {
	if len(questions) != len(answers) {
		return nil, &ServiceError{Code: ErrorInvalid, Message: ErrAnswerFormat.Error(),
			Err: fmt.Errorf("got %d answers for %d questions", len(answers), len(questions))}
	}
	clean := make([]CleanAnswer, 0, len(answers))
	errs := QuestionErrors{}
	for i, q := range questions {
		ca, msg, err := q.Validate(answers[i])
		if err != nil {
			return nil, &ServiceError{Code: ErrorInvalid, Message: ErrAnswerFormat.Error(),
				Err: fmt.Errorf("question %d: %w", i, err)}
		}
		if msg != "" {
			errs[strconv.Itoa(i)] = msg
			continue
		}
		clean = append(clean, ca)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return clean, nil
}
