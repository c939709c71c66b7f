package surveys

import "github.com/soaringjerry/Pictopercept/internal/services"

var jobTitles = []string{
	"a doctor", "a lawyer", "a nurse", "an author", "a teacher", "an engineer", "a scientist",
	"a chef", "an artist", "an architect", "a pilot", "a journalist", "a dentist", "a therapist",
	"an accountant", "a musician", "a designer", "a programmer", "a pharmacist", "a plumber",
	"an electrician", "a librarian", "an analyst", "a consultant", "an entrepreneur", "a researcher",
	"a technician", "an editor", "a translator", "a veterinarian", "a social worker", "a photographer",
}

func jobPrompts() []string {
	out := make([]string, 0, len(jobTitles))
	for _, j := range jobTitles {
		out = append(out, "Who of these is "+j+"?")
	}
	return out
}

// Jobs asks about 32 job titles, two face pairs each, so a full CFD pool
// (64 category pairs) gives every title a turn. The questionnaire is on and
// comes before or after the images.
func Jobs(pool *services.ImagePool, datasetPath string) *services.SurveyDefinition {
	def := Occupations(pool, datasetPath)
	def.ID = "jobs"
	def.Prompts = jobPrompts()
	def.PairsPerPrompt = 2
	def.RegularQuestionsEnabled = true
	duration := 60
	def.DurationSeconds = &duration
	return def
}
