package tests

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student_records/backend/internal/shared"
)

func TestGateway_Uploads(t *testing.T) {
	env := setupGatewayTestEnv(t)
	env.seedUser(t, "user_alice", "alice@test.com", shared.RoleUser)
	env.seedUser(t, "user_bob", "bob@test.com", shared.RoleUser)
	env.seedUser(t, "user_admin", "admin@test.com", shared.RoleAdmin)

	alice := env.login(t, "/api/auth/login", "alice@test.com")
	bob := env.login(t, "/api/auth/login", "bob@test.com")
	admin := env.login(t, "/api/admin/auth/login", "admin@test.com")

	var uploadID string

	t.Run("Upload Workbook", func(t *testing.T) {
		rr := env.upload(t, "/api/uploads", alice, "students.xlsx", buildXLSX(t, studentSheet))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		resp := decode(t, rr)
		uploadID, _ = resp["uploadId"].(string)
		require.NotEmpty(t, uploadID)
		assert.Equal(t, string(shared.UploadCompleted), resp["status"])

		stats := resp["stats"].(map[string]interface{})
		assert.EqualValues(t, 3, stats["total"])
		assert.EqualValues(t, 3, stats["successful"])
		assert.EqualValues(t, 0, stats["failed"])
	})

	t.Run("Upload Missing File", func(t *testing.T) {
		rr := env.upload(t, "/api/uploads", alice, "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Upload Unreadable File", func(t *testing.T) {
		rr := env.upload(t, "/api/uploads", alice, "notes.txt", []byte("plain text"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Upload Empty File", func(t *testing.T) {
		rr := env.upload(t, "/api/uploads", alice, "empty.xlsx", []byte{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Upload Too Large", func(t *testing.T) {
		rr := env.upload(t, "/api/uploads", alice, "big.csv", bytes.Repeat([]byte("a,b\n"), 1<<19))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("List Own Uploads", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/uploads", alice, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode(t, rr)["uploads"], 1)

		rr = env.do(t, http.MethodGet, "/api/uploads", bob, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode(t, rr)["uploads"], 0)
	})

	t.Run("Foreign Upload Is Not Found", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/uploads/"+uploadID, bob, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = env.do(t, http.MethodGet, "/api/uploads/"+uploadID+"/records", bob, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	var recordID string

	t.Run("List Records With Search", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/uploads/"+uploadID+"/records?search=grace", alice, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		resp := decode(t, rr)
		records := resp["records"].([]interface{})
		require.Len(t, records, 1)
		assert.Equal(t, []interface{}{"Student ID", "Name", "Program"}, resp["headers"])

		record := records[0].(map[string]interface{})
		recordID = record["id"].(string)
		assert.Equal(t, "S-002", record["inferred_id"])
	})

	t.Run("List Records With Filter And Paging", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/uploads/"+uploadID+"/records?filter[Program]=cs&limit=1&page=2", alice, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		resp := decode(t, rr)
		assert.Len(t, resp["records"], 1)
		pagination := resp["pagination"].(map[string]interface{})
		assert.EqualValues(t, 2, pagination["total"])
		assert.EqualValues(t, 2, pagination["totalPages"])
	})

	t.Run("Update Record", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/api/records/"+recordID, alice, map[string]interface{}{
			"rawData": map[string]interface{}{"Student ID": "S-002", "Name": "Grace Hopper", "Program": "IT"},
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = env.do(t, http.MethodGet, "/api/records/"+recordID, alice, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Grace Hopper")
	})

	t.Run("Foreign Record Is Not Found", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/records/"+recordID, bob, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = env.do(t, http.MethodDelete, "/api/records/"+recordID, bob, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Export CSV", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/uploads/"+uploadID+"/export?format=csv", alice, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "students_export.csv")

		rows, err := csv.NewReader(rr.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, []string{"Student ID", "Name", "Program"}, rows[0])
	})

	t.Run("Filters Cannot Reach Another Upload", func(t *testing.T) {
		rr := env.upload(t, "/api/uploads", bob, "bob.xlsx", buildXLSX(t, [][]interface{}{
			{"Student ID", "Name"},
			{"B-001", "Bobby"},
		}))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		bobUpload := decode(t, rr)["uploadId"].(string)

		rr = env.do(t, http.MethodGet, "/api/uploads/"+bobUpload+"/records?filter[upload_id]="+uploadID+"&filter[owner_id]=user_alice", bob, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		records := decode(t, rr)["records"].([]interface{})
		require.Len(t, records, 1)
		assert.Equal(t, "B-001", records[0].(map[string]interface{})["inferred_id"])

		rr = env.do(t, http.MethodGet, "/api/uploads/"+bobUpload+"/export?format=csv&filter[upload_id]="+uploadID, bob, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "Grace")

		rr = env.do(t, http.MethodDelete, "/api/uploads/"+bobUpload, bob, nil)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Export Failure Is Not A 200", func(t *testing.T) {
		env.Records.EachErr = errors.New("cursor died")
		defer func() { env.Records.EachErr = nil }()

		rr := env.do(t, http.MethodGet, "/api/uploads/"+uploadID+"/export?format=xlsx", alice, nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Empty(t, rr.Header().Get("Content-Disposition"))
		assert.Equal(t, false, decode(t, rr)["success"])
	})

	t.Run("Admin Sees Every Upload", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/admin/uploads", admin, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode(t, rr)["uploads"], 1)

		rr = env.do(t, http.MethodGet, "/api/admin/records/"+recordID, admin, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Delete Record", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/api/records/"+recordID, alice, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = env.do(t, http.MethodGet, "/api/records/"+recordID, alice, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Delete Upload Cascades", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/api/uploads/"+uploadID, alice, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.EqualValues(t, 2, decode(t, rr)["deletedRecords"])
		assert.Empty(t, env.Records.All())

		rr = env.do(t, http.MethodGet, "/api/uploads/"+uploadID, alice, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
