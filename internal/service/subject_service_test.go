package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
)

type mockSubjectRepo struct {
	subjects map[string]*models.Subject
}

func (m *mockSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	var out []models.Subject
	for _, s := range m.subjects {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	return out, len(out), nil
}

func (m *mockSubjectRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubjectRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	for id, s := range m.subjects {
		if s.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	subject.ID = "sub-new"
	copy := *subject
	m.subjects[subject.ID] = &copy
	return nil
}

func (m *mockSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	copy := *subject
	m.subjects[subject.ID] = &copy
	return nil
}

func (m *mockSubjectRepo) Deactivate(ctx context.Context, id string) error {
	s, ok := m.subjects[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.IsActive = false
	return nil
}

func TestSubjectServiceCreate(t *testing.T) {
	repo := &mockSubjectRepo{subjects: map[string]*models.Subject{}}
	cache := &recordingInvalidator{}
	svc := NewSubjectService(repo, cache, nil, nil)

	subject, err := svc.Create(context.Background(), dto.SubjectRequest{Name: " Mathematics ", Code: "mth"})
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", subject.Name)
	assert.Equal(t, "MTH", subject.Code)
	assert.True(t, subject.IsActive)
	assert.Equal(t, []string{cachePatternTimetables}, cache.patterns)

	_, err = svc.Create(context.Background(), dto.SubjectRequest{Name: "Maths again", Code: "MTH"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceUpdateKeepsOwnCode(t *testing.T) {
	repo := &mockSubjectRepo{subjects: map[string]*models.Subject{
		"s1": {ID: "s1", Name: "Mathematics", Code: "MTH", IsActive: true},
		"s2": {ID: "s2", Name: "English", Code: "ENG", IsActive: true},
	}}
	svc := NewSubjectService(repo, nil, nil, nil)

	subject, err := svc.Update(context.Background(), "s1", dto.SubjectRequest{Name: "Further Mathematics", Code: "MTH"})
	require.NoError(t, err)
	assert.Equal(t, "Further Mathematics", subject.Name)

	_, err = svc.Update(context.Background(), "s1", dto.SubjectRequest{Name: "Mathematics", Code: "eng"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceDeleteDeactivates(t *testing.T) {
	repo := &mockSubjectRepo{subjects: map[string]*models.Subject{"s1": {ID: "s1", Code: "MTH", IsActive: true}}}
	svc := NewSubjectService(repo, nil, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "s1"))
	assert.False(t, repo.subjects["s1"].IsActive)

	err := svc.Delete(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
