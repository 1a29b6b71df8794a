package batch

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/docsmith-platform/docsmith/internal/generation"
)

// Summarize reduces terminal JobRecords into a BatchRun. Non-terminal jobs
// (never scheduled because of cancellation) are excluded entirely, so the
// summary reflects exactly what was processed. The reduction is deterministic:
// re-running it over the same records yields identical numbers, and entries
// keep the order jobs were issued in.
func Summarize(jobs []*JobRecord, generatedAt time.Time) *BatchRun {
	run := &BatchRun{
		SuccessfulFiles: []SucceededFile{},
		FailedFiles:     []FailedFile{},
		GeneratedAt:     generatedAt,
	}

	var scoreSum int
	for _, job := range jobs {
		switch job.Status {
		case JobSucceeded:
			run.SuccessCount++
			entry := SucceededFile{
				Filename: job.Filename,
				DocType:  job.DocType,
			}
			if job.GeneratedAt != nil {
				entry.GeneratedAt = *job.GeneratedAt
			}
			if job.QualityScore != nil {
				scoreSum += job.QualityScore.Score
				entry.Score = job.QualityScore.Score
				entry.Grade = job.QualityScore.Grade
				entry.Strengths = job.QualityScore.Breakdown.Strengths
				entry.Improvements = job.QualityScore.Breakdown.Improvements
			}
			run.SuccessfulFiles = append(run.SuccessfulFiles, entry)
		case JobFailed:
			run.FailCount++
			run.FailedFiles = append(run.FailedFiles, FailedFile{
				Filename: job.Filename,
				Error:    job.Error,
			})
		}
	}

	run.TotalFiles = run.SuccessCount + run.FailCount
	if run.SuccessCount > 0 {
		run.AvgQuality = math.Round(float64(scoreSum)/float64(run.SuccessCount)*100) / 100
	}
	run.AvgGrade = generation.GradeForScore(run.AvgQuality)
	return run
}

// FormatReport renders a BatchRun as a human-readable report. Formatting may
// vary in whitespace only; every number comes straight from the summary.
func FormatReport(run *BatchRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Batch documentation report — %s\n", run.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Files: %d total, %d succeeded, %d failed\n", run.TotalFiles, run.SuccessCount, run.FailCount)
	if run.SuccessCount > 0 {
		fmt.Fprintf(&b, "Average quality: %.2f (%s)\n", run.AvgQuality, run.AvgGrade)
	}

	if len(run.SuccessfulFiles) > 0 {
		b.WriteString("\nGenerated documents:\n")
		for _, f := range run.SuccessfulFiles {
			fmt.Fprintf(&b, "  %s [%s] — %d/100 (%s), %s\n",
				f.Filename, f.DocType, f.Score, f.Grade, f.GeneratedAt.UTC().Format(time.RFC3339))
			if len(f.Strengths) > 0 {
				fmt.Fprintf(&b, "    strengths: %s\n", strings.Join(f.Strengths, "; "))
			}
			if len(f.Improvements) > 0 {
				fmt.Fprintf(&b, "    improvements: %s\n", strings.Join(f.Improvements, "; "))
			}
		}
	}

	if len(run.FailedFiles) > 0 {
		b.WriteString("\nFailures:\n")
		for _, f := range run.FailedFiles {
			fmt.Fprintf(&b, "  %s — %s\n", f.Filename, f.Error)
		}
	}

	return b.String()
}
