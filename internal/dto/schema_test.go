package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-api/internal/models"
)

func TestCreateSchemaRejectsUnknownAndMissingFields(t *testing.T) {
	schemas := MustLoadSchemas()

	require.NoError(t, schemas.Validate(SchemaStudentCreate, []byte(`{"name":"Ana","cohort":"2024","courses":["Math"],"dateJoined":"2024-01-01T10:00","lastLogin":null,"status":"active"}`)))

	err := schemas.Validate(SchemaStudentCreate, []byte(`{"name":"Ana","cohort":"2024","nickname":"A"}`))
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.NotEmpty(t, schemaErr.Details)

	err = schemas.Validate(SchemaStudentCreate, []byte(`{"name":"Ana"}`))
	require.ErrorAs(t, err, &schemaErr)

	require.ErrorIs(t, schemas.Validate(SchemaStudentCreate, []byte(`{"name":`)), ErrMalformedJSON)
}

func TestUpdateSchemaUsesSnakeCaseTimestamps(t *testing.T) {
	schemas := MustLoadSchemas()

	require.NoError(t, schemas.Validate(SchemaStudentUpdate, []byte(`{"name":"Ana","cohort":"2024","courses":[],"date_joined":"2024-01-01","last_login":"2024-01-02","status":"inactive"}`)))

	var schemaErr *SchemaError
	require.ErrorAs(t, schemas.Validate(SchemaStudentUpdate, []byte(`{"name":"Ana","cohort":"2024","dateJoined":"2024-01-01","status":"active"}`)), &schemaErr)
	require.ErrorAs(t, schemas.Validate(SchemaStudentUpdate, []byte(`{"name":"Ana","cohort":"2024"}`)), &schemaErr)
}

func TestStudentResponseMatchesSchema(t *testing.T) {
	schemas := MustLoadSchemas()
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	response := NewStudentResponse(models.Student{
		ID:         3,
		Name:       "Ana",
		Cohort:     "2024",
		DateJoined: now,
		LastLogin:  now,
		Status:     models.StudentStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NotNil(t, response.Courses)

	body, err := json.Marshal(response)
	require.NoError(t, err)
	require.NoError(t, schemas.Validate(SchemaStudent, body))
}
