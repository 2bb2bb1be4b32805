// Package forms holds the minimal test-drive-form records the survey
// engine needs from the surrounding workflow: an opaque identifier and a
// brand tag. Customer, vehicle and document handling live elsewhere.
package forms

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/motorline/drive-survey/model"
)

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("test drive form %s not found", e.ID)
}

func Create(ctx context.Context, db *sql.DB, reference, brand string) (model.TestDriveForm, error) {
	f := model.TestDriveForm{
		ID:        uuid.NewString(),
		Reference: reference,
		Brand:     brand,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO test_drive_form (id, reference, brand, created_at)
		VALUES (?, ?, ?, ?)`,
		f.ID, f.Reference, f.Brand, f.CreatedAt,
	)
	if err != nil {
		return model.TestDriveForm{}, errors.Wrap(err, "insert test drive form")
	}
	return f, nil
}

func Get(ctx context.Context, db *sql.DB, id string) (model.TestDriveForm, error) {
	var f model.TestDriveForm
	err := db.QueryRowContext(ctx, `
		SELECT id, reference, brand, created_at
		FROM test_drive_form WHERE id = ?`,
		id,
	).Scan(&f.ID, &f.Reference, &f.Brand, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TestDriveForm{}, &NotFoundError{ID: id}
	}
	if err != nil {
		return model.TestDriveForm{}, errors.Wrap(err, "scan test drive form")
	}
	return f, nil
}

func List(ctx context.Context, db *sql.DB) ([]model.TestDriveForm, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, reference, brand, created_at
		FROM test_drive_form ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query test drive forms")
	}
	defer rows.Close()

	list := []model.TestDriveForm{}
	for rows.Next() {
		var f model.TestDriveForm
		err = rows.Scan(&f.ID, &f.Reference, &f.Brand, &f.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scan test drive form")
		}
		list = append(list, f)
	}
	return list, rows.Err()
}
