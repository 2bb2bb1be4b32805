package survey

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/motorline/drive-survey/model"
)

// CurrentVersion returns the version of a survey flagged current.
func CurrentVersion(ctx context.Context, db *sql.DB, surveyID string) (model.SurveyVersion, error) {
	if _, err := GetSurvey(ctx, db, surveyID); err != nil {
		return model.SurveyVersion{}, err
	}

	var v model.SurveyVersion
	err := db.QueryRowContext(ctx, `
		SELECT id, survey_id, version, is_current, notes, created_at
		FROM survey_version
		WHERE survey_id = ? AND is_current = 1`,
		surveyID,
	).Scan(&v.ID, &v.SurveyID, &v.Version, &v.IsCurrent, &v.Notes, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SurveyVersion{}, &NoCurrentVersionError{SurveyID: surveyID}
	}
	if err != nil {
		return model.SurveyVersion{}, errors.Wrap(err, "scan current version")
	}
	return v, nil
}

// CurrentVersionForBrand picks the current version of the most recently
// created active, ready survey for a brand. Both failure modes are
// configuration errors for the caller to surface, not retry.
func CurrentVersionForBrand(ctx context.Context, db *sql.DB, brand string) (model.SurveyVersion, error) {
	var v model.SurveyVersion
	err := db.QueryRowContext(ctx, `
		SELECT v.id, v.survey_id, v.version, v.is_current, v.notes, v.created_at
		FROM survey_version v
		INNER JOIN (
			SELECT id FROM survey
			WHERE brand = ? AND is_active = 1 AND status = ?
			ORDER BY created_at DESC
			LIMIT 1
		) s ON (s.id = v.survey_id)
		WHERE v.is_current = 1`,
		brand, model.SurveyReady,
	).Scan(&v.ID, &v.SurveyID, &v.Version, &v.IsCurrent, &v.Notes, &v.CreatedAt)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.SurveyVersion{}, errors.Wrap(err, "scan current version for brand")
	}

	// Distinguish "no survey at all" from "survey without a current
	// version" so misconfiguration reports point at the right thing.
	var surveyID string
	err = db.QueryRowContext(ctx, `
		SELECT id FROM survey
		WHERE brand = ? AND is_active = 1 AND status = ?
		ORDER BY created_at DESC
		LIMIT 1`,
		brand, model.SurveyReady,
	).Scan(&surveyID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SurveyVersion{}, &NoActiveSurveyError{Brand: brand}
	}
	if err != nil {
		return model.SurveyVersion{}, errors.Wrap(err, "scan active survey for brand")
	}
	return model.SurveyVersion{}, &NoCurrentVersionError{SurveyID: surveyID}
}
