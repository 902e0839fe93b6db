package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/person-registry/internal/auth"
	"github.com/ignite/person-registry/internal/cache"
	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/notify"
	"github.com/ignite/person-registry/internal/objectstore"
	"github.com/ignite/person-registry/internal/pkg/httputil"
	"github.com/ignite/person-registry/internal/service/importer"
)

// fakePersons implements PersonService for testing
type fakePersons struct {
	err        error
	persons    []domain.Person
	total      int
	lastFilter domain.PersonFilter
	lastName   string
	lastIgnore *int64
	taken      bool
	deleted    int
}

func (f *fakePersons) Create(ctx context.Context, in domain.PersonInput) (*domain.Person, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Person{ID: 1, Name: in.Name, EyeColor: in.EyeColor, Height: in.Height}, nil
}

func (f *fakePersons) Update(ctx context.Context, id int64, in domain.PersonInput) (*domain.Person, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Person{ID: id, Name: in.Name}, nil
}

func (f *fakePersons) Get(ctx context.Context, id int64) (*domain.Person, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Person{ID: id, Name: "Alice"}, nil
}

func (f *fakePersons) List(ctx context.Context, filter domain.PersonFilter) ([]domain.Person, int, error) {
	f.lastFilter = filter
	return f.persons, f.total, f.err
}

func (f *fakePersons) Delete(ctx context.Context, id int64) error { return f.err }

func (f *fakePersons) DeleteByHeight(ctx context.Context, height float64) (int, error) {
	return f.deleted, f.err
}

func (f *fakePersons) IsNameTaken(ctx context.Context, name string, ignoreID *int64) (bool, error) {
	f.lastName = name
	f.lastIgnore = ignoreID
	return f.taken, f.err
}

func (f *fakePersons) WithMaxID(ctx context.Context) (*domain.Person, error) {
	return &domain.Person{ID: 99}, f.err
}

func (f *fakePersons) UniqueHeights(ctx context.Context) ([]float64, error) {
	return []float64{150.5, 180}, f.err
}

func (f *fakePersons) CountByEyeColor(ctx context.Context, c domain.Color) (int64, error) {
	return 4, f.err
}

func (f *fakePersons) ShareByEyeColor(ctx context.Context, c domain.Color) (float64, error) {
	return 25, f.err
}

// fakeLocations implements LocationService for testing
type fakeLocations struct {
	err error
}

func (f *fakeLocations) Create(ctx context.Context, in domain.LocationInput) (*domain.Location, error) {
	return &domain.Location{ID: 1, X: in.X, Y: in.Y, Z: in.Z, Name: in.Name}, f.err
}

func (f *fakeLocations) Get(ctx context.Context, id int64) (*domain.Location, error) {
	return &domain.Location{ID: id}, f.err
}

func (f *fakeLocations) List(ctx context.Context, limit, offset int) ([]domain.Location, int, error) {
	return []domain.Location{{ID: 1}}, 1, f.err
}

func (f *fakeLocations) Update(ctx context.Context, id int64, in domain.LocationInput) (*domain.Location, error) {
	return &domain.Location{ID: id}, f.err
}

func (f *fakeLocations) Delete(ctx context.Context, id int64) error { return f.err }

func (f *fakeLocations) CreateCoordinates(ctx context.Context, in domain.CoordinatesInput) (*domain.Coordinates, error) {
	return &domain.Coordinates{ID: 1, X: in.X, Y: in.Y}, f.err
}

func (f *fakeLocations) GetCoordinates(ctx context.Context, id int64) (*domain.Coordinates, error) {
	return &domain.Coordinates{ID: id}, f.err
}

func (f *fakeLocations) ListCoordinates(ctx context.Context, limit, offset int) ([]domain.Coordinates, int, error) {
	return nil, 0, f.err
}

func (f *fakeLocations) DeleteCoordinates(ctx context.Context, id int64) error { return f.err }

// fakeImports implements ImportService for testing
type fakeImports struct {
	job      *domain.ImportJob
	err      error
	upload   importer.Upload
	identity domain.Identity
	scope    string
	file     *importer.DownloadedFile
}

func (f *fakeImports) ImportPersons(ctx context.Context, up importer.Upload) (*domain.ImportJob, error) {
	f.upload = up
	return f.job, f.err
}

func (f *fakeImports) ImportLocations(ctx context.Context, up importer.Upload) (*domain.ImportJob, error) {
	f.upload = up
	return f.job, f.err
}

func (f *fakeImports) History(ctx context.Context, typ domain.ImportJobType, scope string) ([]domain.ImportJob, error) {
	f.identity = auth.FromContext(ctx)
	f.scope = scope
	return []domain.ImportJob{{ID: 1, Type: typ}}, f.err
}

func (f *fakeImports) DownloadFile(ctx context.Context, jobID int64) (*importer.DownloadedFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.file, nil
}

type fakeStats struct{ s cache.Stats }

func (f fakeStats) Stats() cache.Stats { return f.s }

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

type testEnv struct {
	router    http.Handler
	persons   *fakePersons
	locations *fakeLocations
	imports   *fakeImports
	hub       *notify.Hub
	toggle    *cache.Toggle
}

func setupTestHandlers(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		persons:   &fakePersons{},
		locations: &fakeLocations{},
		imports:   &fakeImports{},
		hub:       notify.NewHub(8),
		toggle:    cache.NewToggle(false),
	}
	h := NewHandlers(Deps{
		Persons:        env.persons,
		Locations:      env.locations,
		Imports:        env.imports,
		Hub:            env.hub,
		Cache:          fakeStats{s: cache.Stats{Hits: 3, Misses: 1}},
		CacheLogging:   env.toggle,
		DB:             fakePinger{},
		KeepAlive:      time.Minute,
		MaxUploadBytes: 1 << 20,
	})
	env.router = SetupRoutes(h, nil)
	return env
}

func (e *testEnv) do(method, target string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	env := setupTestHandlers(t)

	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_DatabaseDown(t *testing.T) {
	h := NewHandlers(Deps{DB: fakePinger{err: errors.New("dial tcp 127.0.0.1:5432: connection refused")}, Hub: notify.NewHub(1)})
	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service temporarily unavailable", decodeError(t, w).Error)
}

func TestRespondError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"not found", fmt.Errorf("person 7: %w", domain.ErrNotFound), http.StatusNotFound, "NOT_FOUND", ""},
		{"name conflict", fmt.Errorf("name %q: %w", "Alice", domain.ErrNameConflict), http.StatusConflict, "NAME_CONFLICT", ""},
		{"linked entity", domain.ErrLinkedEntityExists, http.StatusConflict, "LINKED_ENTITY_EXISTS", ""},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN", ""},
		{"validation", fmt.Errorf("%w: height must be positive", domain.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"parse", &importer.ParseError{Err: errors.New("yaml: line 3: bad indentation")}, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"storage", &objectstore.StorageError{Op: "put", Key: "staging/x", Err: errors.New("timeout")}, http.StatusBadGateway, "STORAGE_ERROR", "storage backend unavailable"},
		{"database", errors.New("pq: relation \"person\" does not exist"), http.StatusInternalServerError, "", "a database error occurred"},
		{"unknown", errors.New("secret internal detail"), http.StatusInternalServerError, "", "an internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error)
			}
		})
	}
}

func TestListPersons_Pagination(t *testing.T) {
	env := setupTestHandlers(t)
	env.persons.persons = []domain.Person{{ID: 3}, {ID: 4}}
	env.persons.total = 5

	w := env.do(http.MethodGet, "/api/persons?page=2&limit=2&eyeColor=green&name=%20al%20", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, domain.PersonFilter{Name: "al", EyeColor: domain.ColorGreen, Limit: 2, Offset: 2}, env.persons.lastFilter)

	var resp Page[domain.Person]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, PageInfo{Page: 2, Limit: 2, Total: 5, TotalPages: 3, HasMore: true}, resp.Pagination)
}

func TestListPersons_UnknownEyeColor(t *testing.T) {
	env := setupTestHandlers(t)
	w := env.do(http.MethodGet, "/api/persons?eyeColor=purple", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadPage_Clamps(t *testing.T) {
	tests := []struct {
		query string
		want  pageRequest
	}{
		{"", pageRequest{Page: 1, Limit: defaultPageSize}},
		{"?page=-1&limit=5000", pageRequest{Page: 1, Limit: maxPageSize}},
		{"?page=3&limit=10", pageRequest{Page: 3, Limit: 10, Offset: 20}},
		{"?page=x&limit=0", pageRequest{Page: 1, Limit: defaultPageSize}},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
		assert.Equal(t, tt.want, readPage(r), tt.query)
	}
}

func TestListCoordinates_EmptyPage(t *testing.T) {
	env := setupTestHandlers(t)

	w := env.do(http.MethodGet, "/api/coordinates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[],"pagination":{"page":1,"limit":20,"total":0,"totalPages":1,"hasMore":false}}`, w.Body.String())
}

func TestGetPerson(t *testing.T) {
	env := setupTestHandlers(t)

	w := env.do(http.MethodGet, "/api/persons/12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p domain.Person
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, int64(12), p.ID)

	w = env.do(http.MethodGet, "/api/persons/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePerson_NameConflict(t *testing.T) {
	env := setupTestHandlers(t)
	env.persons.err = fmt.Errorf("create person: %w", domain.ErrNameConflict)

	body := `{"name":"Alice","eyeColor":"GREEN","height":170,"coordinates":{"x":1,"y":2},"location":{"x":1,"y":2,"z":3}}`
	w := env.do(http.MethodPost, "/api/persons", strings.NewReader(body), "Content-Type", "application/json")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NAME_CONFLICT", decodeError(t, w).Code)
}

func TestCreatePerson_Created(t *testing.T) {
	env := setupTestHandlers(t)

	body := `{"name":"Bob","eyeColor":"BROWN","height":181.5}`
	w := env.do(http.MethodPost, "/api/persons", strings.NewReader(body), "Content-Type", "application/json")

	require.Equal(t, http.StatusCreated, w.Code)
	var p domain.Person
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "Bob", p.Name)
	assert.Equal(t, domain.ColorBrown, p.EyeColor)
}

func TestNameTaken(t *testing.T) {
	env := setupTestHandlers(t)
	env.persons.taken = true

	w := env.do(http.MethodGet, "/api/persons/name-taken?name=Alice&ignoreId=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"taken":true}`, w.Body.String())
	assert.Equal(t, "Alice", env.persons.lastName)
	require.NotNil(t, env.persons.lastIgnore)
	assert.Equal(t, int64(3), *env.persons.lastIgnore)

	w = env.do(http.MethodGet, "/api/persons/name-taken?name=%20", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/persons/name-taken?name=Alice&ignoreId=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPersonAggregates(t *testing.T) {
	env := setupTestHandlers(t)
	env.persons.deleted = 2

	w := env.do(http.MethodDelete, "/api/persons/by-height?height=170", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())

	w = env.do(http.MethodDelete, "/api/persons/by-height?height=tall", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/persons/count-by-eye-color?eyeColor=green", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":4}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/persons/share-by-eye-color?eyeColor=GREEN", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"percent":25}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/persons/unique-heights", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[150.5,180]`, w.Body.String())

	w = env.do(http.MethodGet, "/api/persons/max-id", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteLocation_LinkedEntity(t *testing.T) {
	env := setupTestHandlers(t)

	w := env.do(http.MethodDelete, "/api/locations/4", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	env.locations.err = fmt.Errorf("location 4: %w", domain.ErrLinkedEntityExists)
	w = env.do(http.MethodDelete, "/api/locations/4", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LINKED_ENTITY_EXISTS", decodeError(t, w).Code)
}

func TestCoordinatesRoutes(t *testing.T) {
	env := setupTestHandlers(t)

	w := env.do(http.MethodPost, "/api/coordinates", strings.NewReader(`{"x":5,"y":1.5}`), "Content-Type", "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	var c domain.Coordinates
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, 5, c.X)

	w = env.do(http.MethodGet, "/api/coordinates/9", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/coordinates", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func multipartBody(t *testing.T, field, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestImportPersons_Success(t *testing.T) {
	env := setupTestHandlers(t)
	env.imports.job = &domain.ImportJob{ID: 5, Type: domain.ImportPerson, Status: domain.ImportSuccess}

	body, ct := multipartBody(t, "file", "persons.yaml", "- name: Alice\n")
	w := env.do(http.MethodPost, "/api/persons/import", body, "Content-Type", ct)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "persons.yaml", env.imports.upload.FileName)
	assert.Equal(t, "- name: Alice\n", string(env.imports.upload.Data))

	var job domain.ImportJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, domain.ImportSuccess, job.Status)
}

func TestImportPersons_FailureCarriesJobID(t *testing.T) {
	env := setupTestHandlers(t)
	env.imports.job = &domain.ImportJob{ID: 7, Status: domain.ImportFailed}
	env.imports.err = &importer.ParseError{Err: errors.New("record 1: name is required")}

	body, ct := multipartBody(t, "file", "bad.yaml", "- {}\n")
	w := env.do(http.MethodPost, "/api/persons/import", body, "Content-Type", ct)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "7", w.Header().Get(HeaderImportJobID))
	assert.Contains(t, decodeError(t, w).Error, "record 1")
}

func TestImportLocations_StorageFailure(t *testing.T) {
	env := setupTestHandlers(t)
	env.imports.job = &domain.ImportJob{ID: 8, Status: domain.ImportFailed}
	env.imports.err = &objectstore.StorageError{Op: "put", Key: "staging/a/b", Err: errors.New("unreachable")}

	body, ct := multipartBody(t, "file", "locations.yaml", "- x: 1\n")
	w := env.do(http.MethodPost, "/api/locations/import", body, "Content-Type", ct)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "8", w.Header().Get(HeaderImportJobID))
}

func TestImport_MissingFile(t *testing.T) {
	env := setupTestHandlers(t)

	body, ct := multipartBody(t, "other", "x.yaml", "data")
	w := env.do(http.MethodPost, "/api/persons/import", body, "Content-Type", ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/persons/import", strings.NewReader("not multipart"), "Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHistory_IdentityFromHeaders(t *testing.T) {
	env := setupTestHandlers(t)

	w := env.do(http.MethodGet, "/api/persons/imports?scope=all", nil, auth.HeaderUser, "bob", auth.HeaderRole, "ADMIN")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Identity{Username: "bob", Role: domain.RoleAdmin}, env.imports.identity)
	assert.Equal(t, "all", env.imports.scope)

	w = env.do(http.MethodGet, "/api/locations/imports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.DemoIdentity, env.imports.identity)
}

func TestDownloadImportFile(t *testing.T) {
	env := setupTestHandlers(t)
	env.imports.file = &importer.DownloadedFile{
		FileName:    "persons.yaml",
		ContentType: "application/x-yaml",
		Body:        io.NopCloser(strings.NewReader("- name: Alice\n")),
	}

	w := env.do(http.MethodGet, "/api/imports/5/file", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-yaml", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="persons.yaml"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "- name: Alice\n", w.Body.String())
}

func TestDownloadImportFile_Forbidden(t *testing.T) {
	env := setupTestHandlers(t)
	env.imports.err = fmt.Errorf("job 5: %w", domain.ErrForbidden)

	w := env.do(http.MethodGet, "/api/imports/5/file", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	env := setupTestHandlers(t)

	w := env.do(http.MethodGet, "/api/cache/l2/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"hits":3,"misses":1}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/cache/l2/logging", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":false}`, w.Body.String())

	w = env.do(http.MethodPut, "/api/cache/l2/logging?enabled=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":true}`, w.Body.String())
	assert.True(t, env.toggle.Enabled())

	w = env.do(http.MethodPut, "/api/cache/l2/logging?enabled=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, env.toggle.Enabled())

	// Logging on must not change responses.
	w = env.do(http.MethodGet, "/api/persons/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWhoAmI(t *testing.T) {
	env := setupTestHandlers(t)

	w := env.do(http.MethodGet, "/api/auth/me", nil, auth.HeaderUser, "carol")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"carol","role":"USER"}`, w.Body.String())
}

func TestPersonStream(t *testing.T) {
	env := setupTestHandlers(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/persons/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	_, err = rd.ReadString('\n')
	require.NoError(t, err)

	env.hub.Broadcast("locations", map[string]int{"id": 1})
	env.hub.Broadcast("persons", map[string]int{"id": 2})

	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: persons\n", line)
	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: {\"id\":2}\n", line)
}
