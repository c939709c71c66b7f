package services

import "math/rand/v2"

// PairQuestion is a two-image forced choice. ImageA is shown on the left.
type PairQuestion struct {
	ImageA string `json:"image_a"`
	ImageB string `json:"image_b"`
	Prompt string `json:"prompt"`
}

// Flipped returns the same question with the images swapped.
func (p PairQuestion) Flipped() PairQuestion {
	return PairQuestion{ImageA: p.ImageB, ImageB: p.ImageA, Prompt: p.Prompt}
}

// GeneratedImageSurvey is the challenge set issued to one session. It is
// stored with the session and never regenerated for it.
type GeneratedImageSurvey struct {
	SurveyID        string         `json:"survey_id"`
	Pairs           []PairQuestion `json:"pair_questions"`
	TimeBarDuration *int           `json:"time_bar_duration"`
	DurationSeconds *int           `json:"duration_seconds"`
	DatasetPath     string         `json:"dataset_path"`
	AccentColor     string         `json:"accent_color"`
	// AttentionChecks holds (original, flipped duplicate) indices into Pairs.
	AttentionChecks [][2]int `json:"attention_checks"`
}

func (g *GeneratedImageSurvey) TimerEnabled() bool { return g != nil && g.TimeBarDuration != nil }

// AttentionOf returns the index of the pair that pair idx duplicates, if idx
// is the flipped half of an attention check.
func (g *GeneratedImageSurvey) AttentionOf(idx int) (int, bool) {
	for _, c := range g.AttentionChecks {
		if c[1] == idx {
			return c[0], true
		}
	}
	return 0, false
}

// ExpandPrompts repeats every prompt perPrompt times, keeping prompt order.
func ExpandPrompts(prompts []string, perPrompt int) []string {
	out := make([]string, 0, len(prompts)*perPrompt)
	for _, p := range prompts {
		for i := 0; i < perPrompt; i++ {
			out = append(out, p)
		}
	}
	return out
}

// CategoryPairs draws one image per side for every ordered pair of
// categories, self pairs included, and shuffles the result. A self pair
// shows two different images unless its group has only one.
func CategoryPairs(pool *ImagePool, rng *rand.Rand) [][2]string {
	cats := pool.Categories()
	out := make([][2]string, 0, len(cats)*len(cats))
	for _, a := range cats {
		for _, b := range cats {
			ga, gb := pool.Group(a), pool.Group(b)
			i := rng.IntN(len(ga))
			var j int
			if a == b && len(ga) > 1 {
				j = (i + 1 + rng.IntN(len(ga)-1)) % len(ga)
			} else {
				j = rng.IntN(len(gb))
			}
			out = append(out, [2]string{ga[i], gb[j]})
		}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// BuildPairs zips the shuffled category pairs with the expanded prompt list,
// appends k flipped attention-check duplicates and shuffles everything once
// more. The returned checks index into the final order.
func BuildPairs(pool *ImagePool, prompts []string, perPrompt, k int, rng *rand.Rand) ([]PairQuestion, [][2]int) {
	images := CategoryPairs(pool, rng)
	texts := ExpandPrompts(prompts, perPrompt)
	n := min(len(images), len(texts))

	seq := make([]PairQuestion, 0, n+k)
	for i := 0; i < n; i++ {
		seq = append(seq, PairQuestion{ImageA: images[i][0], ImageB: images[i][1], Prompt: texts[i]})
	}

	k = max(0, min(k, n))
	origins := rng.Perm(n)[:k]
	for _, o := range origins {
		seq = append(seq, seq[o].Flipped())
	}

	order := rng.Perm(len(seq))
	final := make([]PairQuestion, len(seq))
	pos := make([]int, len(seq))
	for newIdx, oldIdx := range order {
		final[newIdx] = seq[oldIdx]
		pos[oldIdx] = newIdx
	}
	checks := make([][2]int, 0, k)
	for m, o := range origins {
		checks = append(checks, [2]int{pos[o], pos[n+m]})
	}
	return final, checks
}

// GenerateImageSurvey builds a fresh challenge set for one participant.
func GenerateImageSurvey(def *SurveyDefinition, rng *rand.Rand) *GeneratedImageSurvey {
	pairs, checks := BuildPairs(def.Pool, def.Prompts, def.PairsPerPrompt, def.AttentionChecks, rng)
	g := &GeneratedImageSurvey{
		SurveyID:        def.ID,
		Pairs:           pairs,
		DurationSeconds: def.DurationSeconds,
		DatasetPath:     def.DatasetPath,
		AccentColor:     def.AccentColor,
		AttentionChecks: checks,
	}
	if def.AnswerTimer.ShouldUse(rng) {
		d := def.AnswerTimer.Duration
		g.TimeBarDuration = &d
	}
	return g
}
