// Package stats summarizes the submitted attempts of an exam.
package stats

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// BucketWidth is the score range covered by one histogram bucket.
const BucketWidth = 10

// Bucket counts the attempts whose score falls in [Min, Max).
// The last bucket also includes its upper bound.
type Bucket struct {
	Range string  `json:"range"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// QuestionStat is the success rate of one question across all attempts.
type QuestionStat struct {
	QuestionID  int64              `json:"question_id"`
	Text        string             `json:"question_text"`
	Type        model.QuestionType `json:"question_type"`
	Total       int                `json:"total"`
	Correct     int                `json:"correct"`
	SuccessRate float64            `json:"success_rate"`
}

// Report is the aggregate view of an exam's submitted attempts.
type Report struct {
	ExamID       int64          `json:"exam_id"`
	Title        string         `json:"title"`
	TotalPoints  float64        `json:"total_points"`
	PassingScore float64        `json:"passing_score"`
	Participants int            `json:"participants"`
	Attempts     int            `json:"attempts"`
	AverageScore float64        `json:"average_score"`
	MaxScore     float64        `json:"max_score"`
	MinScore     float64        `json:"min_score"`
	PassedCount  int            `json:"passed_count"`
	PassRate     float64        `json:"pass_rate"`
	Distribution []Bucket       `json:"score_distribution"`
	Questions    []QuestionStat `json:"questions"`
}

// Compute builds the report for e. Attempts that were never submitted are
// ignored, as are responses that do not belong to a submitted attempt or to
// one of questions. Rates are percentages rounded to two decimals.
func Compute(e model.Exam, questions []model.Question, attempts []model.Attempt, responses []model.Response) Report {
	r := Report{
		ExamID:       e.ID,
		Title:        e.Title,
		TotalPoints:  e.TotalPoints,
		PassingScore: e.PassingScore,
		Questions:    make([]QuestionStat, 0, len(questions)),
	}

	var scores []float64
	submitted := make(map[int64]bool, len(attempts))
	students := make(map[int64]bool)
	for _, a := range attempts {
		if a.InProgress() {
			continue
		}
		var score float64
		if a.Score != nil {
			score = *a.Score
		}
		submitted[a.ID] = true
		students[a.StudentID] = true
		scores = append(scores, score)
		if score >= e.PassingScore {
			r.PassedCount++
		}
	}
	r.Participants = len(students)
	r.Attempts = len(scores)

	if len(scores) > 0 {
		var sum float64
		r.MinScore, r.MaxScore = scores[0], scores[0]
		for _, s := range scores {
			sum += s
			r.MinScore = min(r.MinScore, s)
			r.MaxScore = max(r.MaxScore, s)
		}
		r.AverageScore = round2(sum / float64(len(scores)))
		r.MinScore = round2(r.MinScore)
		r.MaxScore = round2(r.MaxScore)
		r.PassRate = rate(r.PassedCount, len(scores))
	}
	r.Distribution = histogram(scores, max(e.TotalPoints, r.MaxScore))

	byQuestion := make(map[int64]*QuestionStat, len(questions))
	ordered := slices.Clone(questions)
	slices.SortStableFunc(ordered, func(a, b model.Question) int {
		return cmp.Compare(a.OrderIndex, b.OrderIndex)
	})
	for _, q := range ordered {
		r.Questions = append(r.Questions, QuestionStat{QuestionID: q.ID, Text: q.Text, Type: q.Type})
	}
	for i := range r.Questions {
		byQuestion[r.Questions[i].QuestionID] = &r.Questions[i]
	}
	for _, resp := range responses {
		qs, ok := byQuestion[resp.QuestionID]
		if !ok || !submitted[resp.AttemptID] {
			continue
		}
		qs.Total++
		if resp.IsCorrect {
			qs.Correct++
		}
	}
	for i := range r.Questions {
		r.Questions[i].SuccessRate = rate(r.Questions[i].Correct, r.Questions[i].Total)
	}
	return r
}

// histogram splits [0, top] into width-10 buckets. Scores at or above the
// last bucket's lower bound land in the last bucket.
func histogram(scores []float64, top float64) []Bucket {
	n := max(int(math.Ceil(top/BucketWidth)), 1)
	buckets := make([]Bucket, n)
	for i := range buckets {
		lo := float64(i * BucketWidth)
		hi := lo + BucketWidth
		buckets[i] = Bucket{Range: fmt.Sprintf("%g-%g", lo, hi), Min: lo, Max: hi}
	}
	for _, s := range scores {
		idx := min(max(int(s/BucketWidth), 0), n-1)
		buckets[idx].Count++
	}
	return buckets
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
