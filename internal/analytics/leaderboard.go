package analytics

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

// LeaderboardEntry is one row of a batch leaderboard. Rank is 1-based.
type LeaderboardEntry struct {
	StudentID         uuid.UUID `json:"studentId"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone"`
	AveragePercentage float64   `json:"averagePercentage"`
	HighestPercentage int       `json:"highestPercentage"`
	AttemptCount      int       `json:"attemptCount"`
	FirstAttemptAt    time.Time `json:"firstAttemptAt"`
	Rank              int       `json:"rank"`
}

// TrendPoint is one completed attempt in a student's chronological series.
type TrendPoint struct {
	TestID      uuid.UUID `json:"testId"`
	Percentage  int       `json:"percentage"`
	Score       float64   `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Comparison puts a student's percentage on one test next to the test
// topper's.
type Comparison struct {
	TestID           uuid.UUID `json:"testId"`
	OwnPercentage    int       `json:"ownPercentage"`
	TopperPercentage int       `json:"topperPercentage"`
}

// StudentReport is the student-facing cross-test analytics payload.
type StudentReport struct {
	AveragePercentage  float64            `json:"averagePercentage"`
	HighestPercentage  int                `json:"highestPercentage"`
	CompletedTests     int                `json:"completedTests"`
	Trend              []TrendPoint       `json:"trend"`
	Comparisons        []Comparison       `json:"comparisons"`
	Rank               int                `json:"rank"`
	BatchTopperAverage float64            `json:"batchTopperAverage"`
	Leaderboard        []LeaderboardEntry `json:"leaderboard"`
}

// Leaderboard ranks students by average percentage over their completed
// attempts, descending. Ties keep the student whose first attempt came
// earlier ahead; the sort is stable so repeated computation reproduces the
// same order. Students with no completed attempts are excluded.
func Leaderboard(students []models.Student, attemptsByStudent map[uuid.UUID][]models.Attempt) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(students))
	for _, s := range students {
		attempts := attemptsByStudent[s.ID]
		var sum float64
		var count int
		var highest int
		var first time.Time
		for _, a := range attempts {
			if a.Status != models.AttemptCompleted {
				continue
			}
			sum += float64(a.Percentage)
			count++
			if a.Percentage > highest {
				highest = a.Percentage
			}
			if first.IsZero() || a.StartedAt.Before(first) {
				first = a.StartedAt
			}
		}
		if count == 0 {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			StudentID:         s.ID,
			Name:              s.Name,
			Phone:             s.Phone,
			AveragePercentage: round2(sum / float64(count)),
			HighestPercentage: highest,
			AttemptCount:      count,
			FirstAttemptAt:    first,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].AveragePercentage != entries[j].AveragePercentage {
			return entries[i].AveragePercentage > entries[j].AveragePercentage
		}
		return entries[i].FirstAttemptAt.Before(entries[j].FirstAttemptAt)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// BuildStudentReport assembles one student's analytics against their batch
// peers. attemptsByStudent must cover every student handed in, keyed by
// student id; only completed attempts contribute.
func BuildStudentReport(studentID uuid.UUID, students []models.Student, attemptsByStudent map[uuid.UUID][]models.Attempt) StudentReport {
	report := StudentReport{}

	own := completedOnly(attemptsByStudent[studentID])
	sort.Slice(own, func(i, j int) bool {
		return submittedTime(own[i]).Before(submittedTime(own[j]))
	})

	var sum float64
	for _, a := range own {
		sum += float64(a.Percentage)
		if a.Percentage > report.HighestPercentage {
			report.HighestPercentage = a.Percentage
		}
		report.Trend = append(report.Trend, TrendPoint{
			TestID:      a.TestID,
			Percentage:  a.Percentage,
			Score:       a.Score,
			SubmittedAt: submittedTime(a),
		})
	}
	report.CompletedTests = len(own)
	if len(own) > 0 {
		report.AveragePercentage = round2(sum / float64(len(own)))
	}

	// Per-test topper comparison across the whole peer set.
	toppers := map[uuid.UUID]int{}
	for _, attempts := range attemptsByStudent {
		for _, a := range completedOnly(attempts) {
			if a.Percentage > toppers[a.TestID] {
				toppers[a.TestID] = a.Percentage
			}
		}
	}
	for _, a := range own {
		report.Comparisons = append(report.Comparisons, Comparison{
			TestID:           a.TestID,
			OwnPercentage:    a.Percentage,
			TopperPercentage: toppers[a.TestID],
		})
	}

	report.Leaderboard = Leaderboard(students, attemptsByStudent)
	if len(report.Leaderboard) > 0 {
		report.BatchTopperAverage = report.Leaderboard[0].AveragePercentage
	}
	for _, e := range report.Leaderboard {
		if e.StudentID == studentID {
			report.Rank = e.Rank
			break
		}
	}

	return report
}

func completedOnly(attempts []models.Attempt) []models.Attempt {
	var out []models.Attempt
	for _, a := range attempts {
		if a.Status == models.AttemptCompleted {
			out = append(out, a)
		}
	}
	return out
}

func submittedTime(a models.Attempt) time.Time {
	if a.SubmittedAt != nil {
		return *a.SubmittedAt
	}
	return a.StartedAt
}
