// Package quiz serves the national-day trivia shown while a visitor's video
// renders. Questions come from a YAML bank; answers stay server-side and
// grading is by question ID, so the kiosk UI never sees the key.
package quiz

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Question is a single multiple-choice question. The answer index is never
// serialized to clients.
type Question struct {
	ID      string   `yaml:"id" json:"id"`
	Text    string   `yaml:"question" json:"question"`
	Options []string `yaml:"options" json:"options"`
	Answer  int      `yaml:"answer" json:"-"`
}

// Result is a graded quiz.
type Result struct {
	Score   float64 `json:"score"`
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
}

// Bank holds the loaded question pool.
type Bank struct {
	questions []Question
	byID      map[string]Question
}

// Load reads the question bank from a YAML file.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank: %w", err)
	}

	var doc struct {
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}

	byID := make(map[string]Question, len(doc.Questions))
	for _, q := range doc.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question without id: %q", q.Text)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			return nil, fmt.Errorf("question %q: answer index %d out of range", q.ID, q.Answer)
		}
		byID[q.ID] = q
	}

	return &Bank{questions: doc.Questions, byID: byID}, nil
}

// Len returns the pool size.
func (b *Bank) Len() int {
	return len(b.questions)
}

// Random returns up to count questions in a shuffled order. The same
// non-empty seed yields the same selection, which lets paired kiosk screens
// show identical quizzes.
func (b *Bank) Random(count int, seed string) []Question {
	if count <= 0 || count > len(b.questions) {
		count = len(b.questions)
	}

	var src rand.Source
	if seed == "" {
		src = rand.NewSource(time.Now().UnixNano())
	} else {
		h := fnv.New64a()
		h.Write([]byte(seed))
		src = rand.NewSource(int64(h.Sum64()))
	}
	rng := rand.New(src)

	picked := make([]Question, len(b.questions))
	copy(picked, b.questions)
	rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:count]
}

// Grade scores a visitor's answers. answers maps question ID to the chosen
// option index; unknown IDs and out-of-range choices count as wrong, and
// questions left unanswered count against the total.
func (b *Bank) Grade(questionIDs []string, answers map[string]int) Result {
	r := Result{Total: len(questionIDs)}
	for _, id := range questionIDs {
		q, ok := b.byID[id]
		if !ok {
			continue
		}
		if choice, answered := answers[id]; answered && choice == q.Answer {
			r.Correct++
		}
	}
	if r.Total > 0 {
		r.Score = float64(r.Correct) / float64(r.Total)
	}
	return r
}
