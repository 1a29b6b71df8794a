package batch

import (
	"context"
	"log/slog"

	"github.com/docsmith-platform/docsmith/internal/source"
)

// reloadStage re-fetches content for jobs that were selected without it but
// carry an external source descriptor. Fetches run one file at a time; a
// failed fetch skips the file and the stage carries on. Fetch errors never
// propagate past this stage — a job left without content simply drops out of
// the runnable set. Fetched content is handed to commit so the caller can
// apply it under its own lock.
func reloadStage(ctx context.Context, fetcher source.Fetcher, jobs []*JobRecord, commit func(job *JobRecord, content string), progress func(ReloadProgress)) {
	var targets []*JobRecord
	for _, job := range jobs {
		if job.Content == "" && job.Source != nil {
			targets = append(targets, job)
		}
	}

	state := ReloadProgress{Total: len(targets)}
	progress(state)

	for _, job := range targets {
		content, err := fetcher.Fetch(ctx, *job.Source)
		state.Completed++
		if err != nil {
			slog.Warn("reloading file content from source",
				"filename", job.Filename, "source", job.Source.String(), "error", err)
			progress(state)
			continue
		}
		commit(job, content)
		state.SucceededIDs = append(state.SucceededIDs, job.ID)
		progress(state)
	}
}
