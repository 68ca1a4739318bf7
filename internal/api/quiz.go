package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/db"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/quiz"
)

// defaultQuestionCount is how many questions a quiz round shows.
const defaultQuestionCount = 5

// QuizResults persists graded quizzes for analytics. Implemented by db.DB.
type QuizResults interface {
	SaveQuizResult(r db.QuizResult) error
}

// QuizHandler serves quiz questions and grades answers.
type QuizHandler struct {
	bank     *quiz.Bank
	jobs     *job.Store
	sessions Sessions
	results  QuizResults
}

// NewQuizHandler creates a QuizHandler. results may be nil.
func NewQuizHandler(bank *quiz.Bank, jobs *job.Store, sessions Sessions, results QuizResults) *QuizHandler {
	return &QuizHandler{bank: bank, jobs: jobs, sessions: sessions, results: results}
}

// QuestionsResponse is a quiz round. Answers never leave the server.
type QuestionsResponse struct {
	Questions []quiz.Question `json:"questions"`
}

// HandleQuestions handles GET /api/questions?count=&seed=.
func (h *QuizHandler) HandleQuestions(w http.ResponseWriter, r *http.Request) {
	count := defaultQuestionCount
	if c := r.URL.Query().Get("count"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}
	seed := r.URL.Query().Get("seed")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(QuestionsResponse{
		Questions: h.bank.Random(count, seed),
	}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// AnswersRequest submits a visitor's quiz answers. Answers maps question ID
// to the chosen option index.
type AnswersRequest struct {
	QuestionIDs []string       `json:"question_ids"`
	Answers     map[string]int `json:"answers"`
}

// HandleAnswers handles POST /api/jobs/{id}/answers: grades the quiz,
// records the result, and signals quiz completion to the session.
func (h *QuizHandler) HandleAnswers(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	var req AnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.QuestionIDs) == 0 {
		http.Error(w, "no questions submitted", http.StatusBadRequest)
		return
	}

	j, err := h.jobs.Get(id)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	result := h.bank.Grade(req.QuestionIDs, req.Answers)

	if h.results != nil {
		if err := h.results.SaveQuizResult(db.QuizResult{
			JobID:     j.ID.String(),
			SessionID: j.SessionID,
			Score:     result.Score,
			Correct:   result.Correct,
			Total:     result.Total,
		}); err != nil {
			// Analytics only; the visitor's flow is not held hostage.
			slog.Error("Failed to save quiz result", "job", j.ID, "error", err)
		}
	}

	if err := h.sessions.Get(j.SessionID).NotifyQuizComplete(); err != nil {
		slog.Warn("Quiz completion not applicable", "session", j.SessionID, "error", err)
	}

	slog.Info("Quiz graded", "job", j.ID, "correct", result.Correct, "total", result.Total)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
