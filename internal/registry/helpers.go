package registry

import (
	"database/sql"
	"strings"
	"time"
)

const bagColumns = "id, identifier, origin_identifier, title, date, status, failed_stage, error_message, retry_count, source_path, working_path, derivative_path, objects_json, manifest_built_at, uploaded_at, created_at, updated_at"

func scanBag(scanner interface{ Scan(dest ...any) error }) (*Bag, error) {
	var (
		id              int64
		identifier      string
		origin          sql.NullString
		title           sql.NullString
		date            sql.NullString
		statusStr       string
		failedStage     sql.NullString
		errorMessage    sql.NullString
		retryCount      sql.NullInt64
		sourcePath      sql.NullString
		workingPath     sql.NullString
		derivativePath  sql.NullString
		objectsJSON     sql.NullString
		manifestBuiltAt sql.NullString
		uploadedAt      sql.NullString
		createdRaw      string
		updatedRaw      string
	)

	if err := scanner.Scan(
		&id,
		&identifier,
		&origin,
		&title,
		&date,
		&statusStr,
		&failedStage,
		&errorMessage,
		&retryCount,
		&sourcePath,
		&workingPath,
		&derivativePath,
		&objectsJSON,
		&manifestBuiltAt,
		&uploadedAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	bag := &Bag{
		ID:               id,
		Identifier:       identifier,
		OriginIdentifier: origin.String,
		Title:            title.String,
		Date:             date.String,
		Status:           Status(statusStr),
		FailedStage:      failedStage.String,
		ErrorMessage:     errorMessage.String,
		RetryCount:       int(retryCount.Int64),
		SourcePath:       sourcePath.String,
		WorkingPath:      workingPath.String,
		DerivativePath:   derivativePath.String,
		ObjectsJSON:      objectsJSON.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		bag.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		bag.UpdatedAt = updated
	}
	if manifestBuiltAt.Valid {
		if built, err := parseTimeString(manifestBuiltAt.String); err == nil {
			bag.ManifestBuiltAt = &built
		}
	}
	if uploadedAt.Valid {
		if uploaded, err := parseTimeString(uploadedAt.String); err == nil {
			bag.UploadedAt = &uploaded
		}
	}
	return bag, nil
}

func parseTimeString(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}
