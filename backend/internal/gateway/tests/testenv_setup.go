package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"student_records/backend/internal/auth"
	"student_records/backend/internal/gateway"
	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
	"student_records/backend/internal/testutil"
)

const testPassword = "password123"

// TestEnv holds the router and the in-memory stores behind it
type TestEnv struct {
	Router  http.Handler
	Repos   *repository.Repositories
	Uploads *testutil.UploadStore
	Records *testutil.RecordStore
	PingErr error
}

// setupGatewayTestEnv builds the full HTTP stack on in-memory repositories
func setupGatewayTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &shared.ServiceConfig{
		ServiceName:    "student-records-test",
		RequestTimeout: 30 * time.Second,
		Security:       shared.SecurityConfig{JWTSecret: "test-secret", JWTExpirationHours: 1, BCryptCost: 4},
		Upload:         shared.UploadConfig{BatchSize: 2, MaxUploadBytes: 1 << 20},
		CORS: shared.CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		},
	}

	repos, uploads, records := testutil.NewRepositories()
	env := &TestEnv{Repos: repos, Uploads: uploads, Records: records}

	services := gateway.NewServices(cfg, repos, log, func(context.Context) error { return env.PingErr })
	env.Router = gateway.SetupRoutes(services, cfg, log)

	return env
}

// seedUser stores an active account with testPassword
func (env *TestEnv) seedUser(t *testing.T, id, email, role string) {
	t.Helper()

	hash, err := auth.HashPassword(testPassword, 4)
	require.NoError(t, err)
	require.NoError(t, env.Repos.Users.Create(context.Background(), &shared.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Name:         id,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}))
}

// login returns a bearer token from path (user or admin login)
func (env *TestEnv) login(t *testing.T, path, email string) string {
	t.Helper()

	rr := env.do(t, http.MethodPost, path, "", map[string]string{"email": email, "password": testPassword})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	token, ok := decode(t, rr)["token"].(string)
	require.True(t, ok, "token missing in response")
	return token
}

// do sends a JSON request through the router
func (env *TestEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	env.Router.ServeHTTP(rr, req)
	return rr
}

// upload posts data as the multipart field "file"
func (env *TestEnv) upload(t *testing.T, path, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	env.Router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

// buildXLSX writes rows into the first sheet of a new workbook
func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var studentSheet = [][]interface{}{
	{"Student ID", "Name", "Program"},
	{"S-001", "Ada", "CS"},
	{"S-002", "Grace", "IT"},
	{"S-003", "Linus", "CS"},
}
