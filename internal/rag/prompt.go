package rag

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/taxrag/internal/index"
)

const (
	// SystemMessage is sent as the system turn of every generation.
	SystemMessage = "შენ ხარ დამხმარე AI ასისტენტი საგადასახადო საკითხებში."

	// DeclineMessage is the answer when the documents hold nothing relevant.
	DeclineMessage = "ბოდიში, ამ კითხვაზე პასუხი არ მოიძებნა მოწოდებულ დოკუმენტებში."

	// FailurePrefix starts the answer returned when generation fails.
	FailurePrefix = "ბოდიში, პასუხის გენერირებისას მოხდა შეცდომა: "

	// EmptyQuestionMessage is shown by callers that reject a blank question.
	EmptyQuestionMessage = "⚠️ გთხოვთ, ჩაწეროთ კითხვა."
)

const promptTemplate = `შენ ხარ AI ასისტენტი, რომელიც ეხმარება მომხმარებლებს საგადასახადო და საბაჟო საკითხებში.

შენი დავალებაა უპასუხო მომხმარებლის კითხვას მოცემული კონტექსტის საფუძველზე.

**მნიშვნელოვანი წესები:**
1. უპასუხე ᲛᲮᲝᲚᲝᲓ კონტექსტში არსებული ინფორმაციის საფუძველზე
2. თუ კონტექსტში არ არის პასუხი, ამბობ: "` + DeclineMessage + `"
3. ᲧᲝᲕᲔᲚᲗᲕᲘᲡ მიუთითე რომელი წყაროდან მოდის ინფორმაცია (წყარო 1, წყარო 2, და ა.შ.)
4. იყავი ზუსტი და კონკრეტული
5. გამოიყენე მარტივი, გასაგები ქართული ენა

**კონტექსტი (დოკუმენტებიდან):**
%s

**მომხმარებლის კითხვა:** %s

**შენი პასუხი:**`

// ContextBlock renders hits in rank order, labelled წყარო 1..n.
func ContextBlock(hits []index.Hit) string {
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "\n--- წყარო %d ---\n", i+1)
		fmt.Fprintf(&b, "დოკუმენტი: %s\n", h.Title)
		fmt.Fprintf(&b, "URL: %s\n", h.Source)
		fmt.Fprintf(&b, "შინაარსი: %s\n", h.Text)
	}
	return b.String()
}

// BuildPrompt returns the user message for query and its sources. The
// numbering of sources matches the labels in the context block.
func BuildPrompt(query string, hits []index.Hit) (string, []Source, error) {
	sources := make([]Source, 0, len(hits))
	for i, h := range hits {
		s, err := NewSource(i+1, h.Title, h.Source)
		if err != nil {
			return "", nil, fmt.Errorf("hit %s: %w", h.ID, err)
		}
		sources = append(sources, s)
	}
	return fmt.Sprintf(promptTemplate, ContextBlock(hits), query), sources, nil
}
