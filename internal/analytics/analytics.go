// Package analytics derives test- and student-level statistics from completed
// attempts. Everything here is computed on demand from slices the repository
// hands over; nothing is persisted.
package analytics

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

// QuestionStat is per-question difficulty data: how many students answered it
// and how many of those got it right.
type QuestionStat struct {
	QuestionID string  `json:"questionId"`
	Attempted  int     `json:"attempted"`
	Correct    int     `json:"correct"`
	Accuracy   float64 `json:"accuracy"`
}

// TestReport is the admin-facing summary for one test.
type TestReport struct {
	TotalStudents     int     `json:"totalStudents"`
	Completed         int     `json:"completed"`
	InProgress        int     `json:"inProgress"`
	NotStarted        int     `json:"notStarted"`
	ParticipationRate float64 `json:"participationRate"`

	AverageScore      float64 `json:"averageScore"`
	MedianScore       float64 `json:"medianScore"`
	HighestScore      float64 `json:"highestScore"`
	LowestScore       float64 `json:"lowestScore"`
	AveragePercentage float64 `json:"averagePercentage"`

	PassedCount int     `json:"passedCount"`
	FailedCount int     `json:"failedCount"`
	PassRate    float64 `json:"passRate"`

	// Ten buckets over percentage: [0,10), [10,20), ... [90,100].
	Histogram [10]int `json:"histogram"`

	BatchAverages map[string]float64 `json:"batchAverages"`
	QuestionStats []QuestionStat     `json:"questionStats"`
}

// BuildTestReport aggregates a test's attempts against its roster. The roster
// is every student the deployment targets; not-started is derived as roster
// size minus the attempts seen.
func BuildTestReport(attempts []models.Attempt, roster []models.Student) TestReport {
	report := TestReport{
		TotalStudents: len(roster),
		BatchAverages: map[string]float64{},
	}

	var completed []models.Attempt
	for _, a := range attempts {
		switch a.Status {
		case models.AttemptCompleted:
			report.Completed++
			completed = append(completed, a)
		case models.AttemptInProgress:
			report.InProgress++
		}
	}
	report.NotStarted = report.TotalStudents - report.Completed - report.InProgress
	if report.NotStarted < 0 {
		report.NotStarted = 0
	}
	if report.TotalStudents > 0 {
		report.ParticipationRate = round2(100 * float64(report.Completed+report.InProgress) / float64(report.TotalStudents))
	}

	if len(completed) == 0 {
		return report
	}

	scores := make([]float64, 0, len(completed))
	var scoreSum, pctSum float64
	report.HighestScore = completed[0].Score
	report.LowestScore = completed[0].Score
	for _, a := range completed {
		scores = append(scores, a.Score)
		scoreSum += a.Score
		pctSum += float64(a.Percentage)
		if a.Score > report.HighestScore {
			report.HighestScore = a.Score
		}
		if a.Score < report.LowestScore {
			report.LowestScore = a.Score
		}
		if a.Passed {
			report.PassedCount++
		} else {
			report.FailedCount++
		}

		bucket := a.Percentage / 10
		if bucket > 9 {
			bucket = 9
		}
		if bucket < 0 {
			bucket = 0
		}
		report.Histogram[bucket]++
	}
	report.AverageScore = round2(scoreSum / float64(len(completed)))
	report.AveragePercentage = round2(pctSum / float64(len(completed)))
	report.MedianScore = median(scores)
	report.PassRate = round2(100 * float64(report.PassedCount) / float64(len(completed)))

	report.BatchAverages = batchAverages(completed, roster)
	report.QuestionStats = questionStats(completed)

	return report
}

func batchAverages(completed []models.Attempt, roster []models.Student) map[string]float64 {
	students := make(map[uuid.UUID]models.Student, len(roster))
	for _, s := range roster {
		students[s.ID] = s
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, a := range completed {
		s, ok := students[a.StudentID]
		if !ok {
			continue
		}
		for _, b := range s.Batches {
			sums[b] += float64(a.Percentage)
			counts[b]++
		}
	}

	out := make(map[string]float64, len(sums))
	for b, sum := range sums {
		out[b] = round2(sum / float64(counts[b]))
	}
	return out
}

// questionStats computes per-question accuracy over exactly the answers that
// were given: blank answers do not count as attempted.
func questionStats(completed []models.Attempt) []QuestionStat {
	var order []string
	stats := map[string]*QuestionStat{}

	for _, a := range completed {
		for _, rec := range a.Answers.Data() {
			if len(rec.Value) == 0 {
				continue
			}
			st, ok := stats[rec.QuestionID]
			if !ok {
				st = &QuestionStat{QuestionID: rec.QuestionID}
				stats[rec.QuestionID] = st
				order = append(order, rec.QuestionID)
			}
			st.Attempted++
			if rec.IsCorrect {
				st.Correct++
			}
		}
	}

	out := make([]QuestionStat, 0, len(order))
	for _, id := range order {
		st := stats[id]
		if st.Attempted > 0 {
			st.Accuracy = round2(100 * float64(st.Correct) / float64(st.Attempted))
		}
		out = append(out, *st)
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return round2((sorted[mid-1] + sorted[mid]) / 2)
	}
	return sorted[mid]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
