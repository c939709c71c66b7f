package services

// An attention check pairs a question i with its flipped duplicate j. The
// participant passes when the same underlying image wins both times, i.e.
// choosing the left image in i goes with choosing the right image in j.
func checkPassed(orig, flipped *ImageDocument) bool {
	return orig.Images[0].Chosen == flipped.Images[1].Chosen
}

// CountFailedChecks counts inconsistent attention checks among the answered
// pairs. Checks with an unanswered side are skipped.
func CountFailedChecks(checks [][2]int, answers map[int]*ImageDocument) int {
	failed := 0
	for _, c := range checks {
		orig, ok1 := answers[c[0]]
		flipped, ok2 := answers[c[1]]
		if !ok1 || !ok2 {
			continue
		}
		if !checkPassed(orig, flipped) {
			failed++
		}
	}
	return failed
}

// FailedAttentionChecks recomputes the counter from stored documents alone,
// using the attention_of link recorded on each flipped duplicate.
func FailedAttentionChecks(docs []*ImageDocument) int {
	byIndex := make(map[int]*ImageDocument, len(docs))
	var checks [][2]int
	for _, d := range docs {
		if _, dup := byIndex[d.PairIndex]; dup {
			continue
		}
		byIndex[d.PairIndex] = d
		if d.AttentionOf != nil {
			checks = append(checks, [2]int{*d.AttentionOf, d.PairIndex})
		}
	}
	return CountFailedChecks(checks, byIndex)
}
