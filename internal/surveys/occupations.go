package surveys

import "github.com/soaringjerry/Pictopercept/internal/services"

const cfdDataset = "chicago_face_dataset"

const welcome = `<p>Welcome to the PictoPercept survey! You'll see pairs of photos and a job title, like "Who of these is a teacher?" or "Who of these is a painter?" Pick the person you think fits the job more by clicking the button.</p><p>Trust your instincts!</p>`

// cfdCategories are the ethnicity/gender codes of the Chicago Face Database.
func cfdCategories() []string {
	var out []string
	for _, e := range "ABWL" {
		for _, g := range "MF" {
			out = append(out, string(e)+string(g))
		}
	}
	return out
}

var occupationPrompts = []string{
	"Who of these is a Chief Executive Officer (CEO)?",
	"Who of these is a Computer Programmer?",
	"Who of these is a Doctor?",
	"Who of these is a Nurse?",
	"Who of these is a Primary School Teacher?",
	"Who of these is a Police Officer?",
	"Who of these is a Housekeeper?",
	"Who of these is a Construction Worker?",
}

func occupationQuestions() []services.RegularQuestion {
	return []services.RegularQuestion{
		services.MultipleChoice("Which of the following best describes your primary occupational status?", true,
			"Employed (full-time)",
			"Employed (part-time)",
			"Self-employed",
			"Unemployed",
			"Retired",
			"Student",
		),
		services.Matrix("How familiar are you with each of the following occupations based on personal experience or people you know? (1 = Not at all familiar; 5 = Extremely familiar)",
			"Teacher", "Doctor", "Plumber"),
		services.MultipleChoice("How often do you consume TV shows, movies, social media, or news that depict various occupations (e.g., in dramas, documentaries, social media content)?", false,
			"Never",
			"Rarely (less than once a week)",
			"Sometimes (1-3 times a week)",
			"Often (4-6 times a week)",
			"Very often (daily)",
		),
		services.AgreementScale("Media portrayals generally provide realistic depictions of different occupations."),
		services.AgreementScale("I notice stereotypes about certain jobs when I watch TV shows or movies."),
		services.AgreementScale("It is easy to guess someone’s occupation just by looking at them."),
		services.AgreementScale("I believe stereotypes about occupations exist for a reason (i.e., there is some truth to them)."),
		services.AgreementScale("Even if I notice stereotypes, I try not to let them influence my judgment."),
		services.AgreementScale("When answering surveys, I try to provide responses that I believe are more socially acceptable, even if they don’t perfectly reflect my true feelings."),
		services.MultipleChoice("In my workplace or daily social environment, I frequently interact with people from diverse backgrounds (e.g., different races, genders, or cultures).", false,
			"Different races",
			"Different genders",
			"Different cultures",
		),
		services.OpenShort("In your own words, how do you think stereotypes (or biases) about certain occupations develop in society?", 8, 50),
	}
}

// Occupations is the image-only survey: eight occupations, eight face pairs
// each, six attention checks and a three minute limit. Its regular questions
// are defined but switched off.
func Occupations(pool *services.ImagePool, datasetPath string) *services.SurveyDefinition {
	duration := 180
	return &services.SurveyDefinition{
		ID:                      "occupations",
		Description:             welcome,
		AccentColor:             "#ff4b4b",
		AnswerTimer:             services.AnswerTimerConfig{Mode: services.TimerRandom, Duration: 6},
		DurationSeconds:         &duration,
		DatasetPath:             datasetPath,
		RegularQuestionsEnabled: false,
		RegularQuestions:        occupationQuestions(),
		Pool:                    pool,
		Prompts:                 occupationPrompts,
		PairsPerPrompt:          services.DefaultPairsPerPrompt,
		AttentionChecks:         services.DefaultAttentionChecks,
	}
}
