package service

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/models"
	"github.com/noah-isme/roster-api/internal/repository"
)

type studentFixture struct {
	svc       StudentService
	repo      repository.StudentRepository
	activity  ActivityService
	publisher *recordingPublisher
}

func newStudentFixture(t *testing.T, cache *RosterCache) studentFixture {
	t.Helper()
	db := setupTestDB(t)
	repo := repository.NewStudentRepository(db)
	activity := NewActivityService(repository.NewActivityLogRepository(db), repo, testLogger())
	publisher := &recordingPublisher{}
	svc := NewStudentService(repo, testValidator(), cache, publisher, activity, testLogger())
	return studentFixture{svc: svc, repo: repo, activity: activity, publisher: publisher}
}

func TestStudentServiceCreateDefaultsCoursesAndTimestamps(t *testing.T) {
	f := newStudentFixture(t, nil)
	before := time.Now().UTC().Add(-time.Second)

	created, err := f.svc.Create(context.Background(), dto.StudentCreateRequest{Name: "Ana", Cohort: "2024-A"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.NotNil(t, created.Courses)
	require.Empty(t, created.Courses)
	require.Equal(t, models.StudentStatusActive, created.Status)

	after := time.Now().UTC().Add(time.Second)
	require.True(t, created.DateJoined.After(before) && created.DateJoined.Before(after))
	require.True(t, created.LastLogin.After(before) && created.LastLogin.Before(after))

	stored, err := f.repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Courses)
	require.Empty(t, stored.Courses)
}

func TestStudentServiceCreateDefaultsInvalidTimestamps(t *testing.T) {
	f := newStudentFixture(t, nil)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.(*studentService).now = func() time.Time { return fixed }

	created, err := f.svc.Create(context.Background(), dto.StudentCreateRequest{
		Name:       "Ben",
		Cohort:     "2024-A",
		DateJoined: dto.Timestamp("not a date"),
		LastLogin:  dto.Timestamp("2024-05-01T08:30"),
	})
	require.NoError(t, err)
	require.True(t, fixed.Equal(created.DateJoined))
	require.True(t, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC).Equal(created.LastLogin))
}

func TestStudentServiceRoundTripPreservesCourseOrder(t *testing.T) {
	f := newStudentFixture(t, nil)

	created, err := f.svc.Create(context.Background(), dto.StudentCreateRequest{
		Name:    "  Cara <b>Diaz</b> ",
		Cohort:  "2023-B",
		Courses: dto.CourseList{"Physics", "Algebra", "Art"},
		Status:  "Inactive",
	})
	require.NoError(t, err)

	fetched, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "Cara Diaz", fetched.Name)
	require.Equal(t, "2023-B", fetched.Cohort)
	require.Equal(t, []string{"Physics", "Algebra", "Art"}, fetched.Courses)
	require.Equal(t, models.StudentStatusInactive, fetched.Status)
}

func TestStudentServiceCreateValidation(t *testing.T) {
	f := newStudentFixture(t, nil)

	_, err := f.svc.Create(context.Background(), dto.StudentCreateRequest{Name: "<script></script>", Cohort: "A"})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	_, err = f.svc.Create(context.Background(), dto.StudentCreateRequest{Name: "Ana", Cohort: "A", Status: "archived"})
	require.ErrorAs(t, err, &validationErrors)
	require.Empty(t, f.publisher.types())
}

func TestStudentServiceCreateStripsEntityEncodedMarkup(t *testing.T) {
	f := newStudentFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, dto.StudentCreateRequest{Name: "&lt;script&gt;alert(1)&lt;/script&gt;", Cohort: "A"})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	created, err := f.svc.Create(ctx, dto.StudentCreateRequest{
		Name:    "&lt;b&gt;Ana&lt;/b&gt; &amp;lt;script&amp;gt;x&amp;lt;/script&amp;gt;Lee",
		Cohort:  "&lt;i&gt;2024-A&lt;/i&gt;",
		Courses: dto.CourseList{"&lt;script&gt;alert(1)&lt;/script&gt;Physics"},
	})
	require.NoError(t, err)
	require.NotContains(t, created.Name, "<")
	require.Equal(t, "Ana Lee", created.Name)
	require.Equal(t, "2024-A", created.Cohort)
	require.Equal(t, []string{"Physics"}, created.Courses)

	stored, err := f.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotContains(t, stored.Name, "<script>")
}

func TestStudentServiceCreateKeepsPlainPunctuation(t *testing.T) {
	f := newStudentFixture(t, nil)

	created, err := f.svc.Create(context.Background(), dto.StudentCreateRequest{
		Name:    "Siobhan O'Brien",
		Cohort:  "Smith & Jones",
		Courses: dto.CourseList{"R&D", "Tom <3 Go"},
	})
	require.NoError(t, err)
	require.Equal(t, "Siobhan O'Brien", created.Name)
	require.Equal(t, "Smith & Jones", created.Cohort)
	require.Equal(t, []string{"R&D", "Tom <3 Go"}, created.Courses)
}

func TestStudentServiceUpdateRejectsInvalidTimestampWithoutChanges(t *testing.T) {
	f := newStudentFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, dto.StudentCreateRequest{Name: "Dev", Cohort: "2022", Courses: dto.CourseList{"Go"}})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, created.ID, dto.StudentUpdateRequest{
		Name:       "Changed",
		Cohort:     "2025",
		DateJoined: dto.Timestamp("31/02/2024"),
		Status:     models.StudentStatusInactive,
	})
	require.ErrorIs(t, err, ErrInvalidDateJoined)

	_, err = f.svc.Update(ctx, created.ID, dto.StudentUpdateRequest{
		Name:      "Changed",
		Cohort:    "2025",
		LastLogin: dto.Timestamp("later"),
		Status:    models.StudentStatusInactive,
	})
	require.ErrorIs(t, err, ErrInvalidLastLogin)

	stored, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Name, stored.Name)
	require.Equal(t, created.Cohort, stored.Cohort)
	require.Equal(t, []string{"Go"}, stored.Courses)
	require.Equal(t, []string{dto.StudentEventCreated}, f.publisher.types())
}

func TestStudentServiceUpdateReplacesFields(t *testing.T) {
	f := newStudentFixture(t, nil)
	ctx := context.Background()
	fixed := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	f.svc.(*studentService).now = func() time.Time { return fixed }

	created, err := f.svc.Create(ctx, dto.StudentCreateRequest{Name: "Eve", Cohort: "2022", Courses: dto.CourseList{"Go", "SQL"}})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, created.ID, dto.StudentUpdateRequest{
		Name:       "Eve Adams",
		Cohort:     "2023",
		Courses:    dto.CourseList{"SQL"},
		DateJoined: dto.Timestamp("2021-09-01T08:00:00Z"),
		Status:     "inactive",
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, "Eve Adams", updated.Name)
	require.Equal(t, []string{"SQL"}, updated.Courses)
	require.True(t, time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC).Equal(updated.DateJoined))
	require.True(t, fixed.Equal(updated.LastLogin))
	require.Equal(t, []string{dto.StudentEventCreated, dto.StudentEventUpdated}, f.publisher.types())

	_, err = f.svc.Update(ctx, created.ID+50, dto.StudentUpdateRequest{Name: "X", Cohort: "Y", Status: "active"})
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestStudentServiceDelete(t *testing.T) {
	f := newStudentFixture(t, nil)
	ctx := context.Background()

	kept, err := f.svc.Create(ctx, dto.StudentCreateRequest{Name: "Kept", Cohort: "A"})
	require.NoError(t, err)
	removed, err := f.svc.Create(ctx, dto.StudentCreateRequest{Name: "Removed", Cohort: "A"})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, removed.ID+100), ErrStudentNotFound)

	listing, err := f.svc.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.Len(t, listing.Items, 2)

	require.NoError(t, f.svc.Delete(ctx, removed.ID))
	_, err = f.svc.Get(ctx, removed.ID)
	require.ErrorIs(t, err, ErrStudentNotFound)

	listing, err = f.svc.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)
	require.Equal(t, kept.ID, listing.Items[0].ID)

	history, err := f.activity.ListForStudent(ctx, removed.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, models.ActivityStudentDeleted, history[0].Action)
}

func TestStudentServiceListSortsByNameRegardlessOfInsertOrder(t *testing.T) {
	f := newStudentFixture(t, nil)
	ctx := context.Background()

	for _, name := range []string{"Zed", "amy", "Mia", "Bob"} {
		_, err := f.svc.Create(ctx, dto.StudentCreateRequest{Name: name, Cohort: "A"})
		require.NoError(t, err)
	}

	listing, err := f.svc.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.Equal(t, []string{"amy", "Bob", "Mia", "Zed"}, studentNames(listing.Items))
	require.Equal(t, int64(4), listing.Pagination.TotalItems)
	require.False(t, listing.Pagination.HasMore)
}

func TestStudentServiceListPagination(t *testing.T) {
	f := newStudentFixture(t, nil)
	ctx := context.Background()

	for _, name := range []string{"A1", "A2", "A3", "A4", "A5"} {
		_, err := f.svc.Create(ctx, dto.StudentCreateRequest{Name: name, Cohort: "A"})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, dto.StudentListRequest{Paginate: true, Page: 1, Size: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"A1", "A2"}, studentNames(page.Items))
	require.Equal(t, 3, page.Pagination.TotalPages)
	require.True(t, page.Pagination.HasMore)

	page, err = f.svc.List(ctx, dto.StudentListRequest{Paginate: true, Page: 3, Size: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"A5"}, studentNames(page.Items))
	require.False(t, page.Pagination.HasMore)

	page, err = f.svc.List(ctx, dto.StudentListRequest{Paginate: true, Size: 1000})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, page.Pagination.PageSize)

	_, err = f.svc.List(ctx, dto.StudentListRequest{Sort: "password"})
	require.ErrorIs(t, err, ErrInvalidSort)

	_, err = f.svc.List(ctx, dto.StudentListRequest{Status: "archived"})
	require.ErrorIs(t, err, ErrInvalidStatusFilter)
}

func TestStudentServiceListUsesCacheUntilMutation(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	f := newStudentFixture(t, NewRosterCache(client, time.Minute, testLogger()))
	ctx := context.Background()

	_, err = f.svc.Create(ctx, dto.StudentCreateRequest{Name: "First", Cohort: "A"})
	require.NoError(t, err)

	first, err := f.svc.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := f.svc.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Len(t, second.Items, 1)

	_, err = f.svc.Create(ctx, dto.StudentCreateRequest{Name: "Second", Cohort: "A"})
	require.NoError(t, err)

	third, err := f.svc.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.False(t, third.CacheHit)
	require.Len(t, third.Items, 2)
}

func TestStudentServiceListDoesNotCacheRowsReadBeforeMutation(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	cache := NewRosterCache(client, time.Minute, testLogger())
	f := newStudentFixture(t, cache)
	ctx := context.Background()

	racing := &mutatingStudentRepo{StudentRepository: f.repo}
	racing.mutate = func() {
		_, err := f.svc.Create(ctx, dto.StudentCreateRequest{Name: "Late", Cohort: "A"})
		require.NoError(t, err)
	}
	reader := NewStudentService(racing, testValidator(), cache, nil, nil, testLogger())

	first, err := reader.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.Empty(t, first.Items)

	second, err := reader.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.False(t, second.CacheHit)
	require.Equal(t, []string{"Late"}, studentNames(second.Items))

	third, err := reader.List(ctx, dto.StudentListRequest{})
	require.NoError(t, err)
	require.True(t, third.CacheHit)
	require.Equal(t, []string{"Late"}, studentNames(third.Items))
}

func TestStudentServiceListPropagatesStorageErrors(t *testing.T) {
	boom := errors.New("storage down")
	svc := NewStudentService(failingStudentRepo{err: boom}, testValidator(), nil, nil, nil, testLogger())

	_, err := svc.List(context.Background(), dto.StudentListRequest{})
	require.ErrorIs(t, err, boom)
}

func studentNames(items []dto.StudentResponse) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}
