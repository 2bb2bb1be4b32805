package model

import "time"

type SurveyStatus string

const (
	SurveyDraft SurveyStatus = "draft"
	SurveyReady SurveyStatus = "ready"
)

func (s SurveyStatus) Valid() bool {
	return s == SurveyDraft || s == SurveyReady
}

type ResponseStatus string

const (
	ResponseStarted   ResponseStatus = "started"
	ResponseSubmitted ResponseStatus = "submitted"
)

// QuestionType selects the payload shape of a question's answers. The
// validator switches exhaustively over these values; anything else is
// rejected at question creation time.
type QuestionType string

const (
	QuestionNumber       QuestionType = "number"
	QuestionText         QuestionType = "text"
	QuestionOptionSingle QuestionType = "option_single"
	QuestionOptionMulti  QuestionType = "option_multi"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionNumber, QuestionText, QuestionOptionSingle, QuestionOptionMulti:
		return true
	}
	return false
}

func (t QuestionType) HasOptions() bool {
	return t == QuestionOptionSingle || t == QuestionOptionMulti
}

type Survey struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Brand     string       `json:"brand"`
	IsActive  bool         `json:"isActive"`
	Status    SurveyStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type SurveyVersion struct {
	ID        string           `json:"id"`
	SurveyID  string           `json:"surveyId"`
	Version   int              `json:"version"`
	IsCurrent bool             `json:"isCurrent"`
	Notes     *string          `json:"notes"`
	CreatedAt time.Time        `json:"createdAt"`
	Survey    *Survey          `json:"survey,omitempty"`
	Questions []SurveyQuestion `json:"questions,omitempty"`
}

type SurveyQuestion struct {
	ID         string           `json:"id"`
	VersionID  string           `json:"surveyVersionId"`
	Type       QuestionType     `json:"type"`
	Label      string           `json:"label"`
	IsRequired bool             `json:"isRequired"`
	OrderIndex int              `json:"orderIndex"`
	MinValue   *float64         `json:"minValue,omitempty"`
	MaxValue   *float64         `json:"maxValue,omitempty"`
	Options    []QuestionOption `json:"options,omitempty"`
}

type QuestionOption struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Label      string `json:"label"`
	Value      string `json:"value"`
	OrderIndex int    `json:"orderIndex"`
}

type SurveyResponse struct {
	ID          string         `json:"id"`
	VersionID   string         `json:"surveyVersionId"`
	FormID      string         `json:"testDriveFormId"`
	Status      ResponseStatus `json:"status"`
	SubmittedAt *time.Time     `json:"submittedAt"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Version     *SurveyVersion `json:"surveyVersion,omitempty"`
	Form        *TestDriveForm `json:"testDriveForm,omitempty"`
	Answers     []SurveyAnswer `json:"answers,omitempty"`
}

type SurveyAnswer struct {
	ID          string          `json:"id"`
	ResponseID  string          `json:"responseId"`
	QuestionID  string          `json:"questionId"`
	OptionID    *string         `json:"optionId,omitempty"`
	ValueNumber *float64        `json:"valueNumber,omitempty"`
	ValueText   *string         `json:"valueText,omitempty"`
	Question    *SurveyQuestion `json:"question,omitempty"`
	Option      *QuestionOption `json:"option,omitempty"`
}

// TestDriveForm is the external record a response is tied to. The survey
// engine only ever reads it; the surrounding workflow owns its lifecycle.
type TestDriveForm struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	Brand     string    `json:"brand"`
	CreatedAt time.Time `json:"createdAt"`
}
