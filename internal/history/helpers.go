package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const runColumns = "id, session_id, mode, status, dry_run, started_at, finished_at, files_processed, files_successful, files_failed, content_generated, git_commits, errors_json, error_message"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		mode        string
		status      string
		dryRun      int64
		startedRaw  string
		finishedRaw sql.NullString
		errorsJSON  sql.NullString
		errorMsg    sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.SessionID,
		&mode,
		&status,
		&dryRun,
		&startedRaw,
		&finishedRaw,
		&run.FilesProcessed,
		&run.FilesSuccessful,
		&run.FilesFailed,
		&run.ContentGenerated,
		&run.GitCommits,
		&errorsJSON,
		&errorMsg,
	); err != nil {
		return nil, err
	}
	run.Mode = Mode(mode)
	run.Status = Status(status)
	run.DryRun = dryRun != 0
	run.ErrorMessage = errorMsg.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &run.Errors); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
