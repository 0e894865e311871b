package db

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

func newMockClient(t *testing.T) (*DatabaseClient, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewDatabaseClientFromDB(sqlDB), mock
}

func TestInsertKnowledgeRecord(t *testing.T) {
	client, mock := newMockClient(t)

	rec := &models.KnowledgeRecord{
		DocumentName: "manual.pdf",
		DocumentType: "application/pdf",
		ChunkText:    "hello",
		ChunkIndex:   3,
		Embedding:    []float32{0.1, 0.2},
		Metadata: models.ChunkMetadata{
			OriginalFile: "manual.pdf",
			StoragePath:  "1700000000000_manual.pdf",
			BatchIndex:   3,
			Keywords:     []string{},
		},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO knowledge_base")).
		WithArgs("manual.pdf", "application/pdf", "hello", 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, client.InsertKnowledgeRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertKnowledgeRecord_Error(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO knowledge_base")).
		WillReturnError(sql.ErrConnDone)

	err := client.InsertKnowledgeRecord(context.Background(), &models.KnowledgeRecord{DocumentName: "a.txt"})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestInsertKnowledgeRecord_Nil(t *testing.T) {
	client, _ := newMockClient(t)
	assert.Error(t, client.InsertKnowledgeRecord(context.Background(), nil))
}

func TestDeleteByDocumentName(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM knowledge_base WHERE document_name = $1")).
		WithArgs("manual.pdf").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := client.DeleteByDocumentName(context.Background(), "manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestDeleteByDocumentName_NoRowsIsNotAnError(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM knowledge_base")).
		WithArgs("ghost.txt").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := client.DeleteByDocumentName(context.Background(), "ghost.txt")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteBySession(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM knowledge_base WHERE metadata->>'session_id' = $1")).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := client.DeleteBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetStoragePath(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(metadata->>'storage_path', '')")).
		WithArgs("manual.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"storage_path"}).AddRow("1700000000000_manual.pdf"))

	path, err := client.GetStoragePath(context.Background(), "manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000_manual.pdf", path)
}

func TestGetStoragePath_NotFound(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(metadata->>'storage_path', '')")).
		WithArgs("ghost.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"storage_path"}))

	_, err := client.GetStoragePath(context.Background(), "ghost.pdf")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListKnowledgeFiles(t *testing.T) {
	client, mock := newMockClient(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY document_name")).
		WillReturnRows(sqlmock.NewRows([]string{"document_name", "document_type", "created_at", "count"}).
			AddRow("a.pdf", "application/pdf", now, 12).
			AddRow("b.txt", "text/plain", now.Add(-time.Hour), 3))

	files, err := client.ListKnowledgeFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.pdf", files[0].Name)
	assert.Equal(t, 12, files[0].Chunks)
	assert.Equal(t, "text/plain", files[1].Type)
}

func TestListKnowledgeFiles_Empty(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY document_name")).
		WillReturnRows(sqlmock.NewRows([]string{"document_name", "document_type", "created_at", "count"}))

	files, err := client.ListKnowledgeFiles(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestSearchKnowledge(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY embedding <-> $1")).
		WithArgs(sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"document_name", "chunk_index", "chunk_text", "metadata", "distance"}).
			AddRow("a.pdf", 0, "first", []byte(`{"summary":"s","keywords":["k1"]}`), 0.12).
			AddRow("a.pdf", 1, "second", []byte(`{}`), 0.5))

	hits, err := client.SearchKnowledge(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "s", hits[0].Summary)
	assert.Equal(t, []string{"k1"}, hits[0].Keywords)
	assert.Equal(t, []string{}, hits[1].Keywords)
	assert.InDelta(t, 0.5, hits[1].Distance, 1e-9)
}

func TestRenderBootstrap(t *testing.T) {
	script, err := renderBootstrap(1536)
	require.NoError(t, err)
	assert.Contains(t, script, "vector(1536)")
	assert.True(t, strings.Contains(script, "knowledge_base_doc_chunk_key"))
}

func TestEnsureBootstrapped_AlreadyCurrent(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM knowledge_meta")).
		WithArgs(schemaVersion).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, EnsureBootstrapped(context.Background(), sqlDB, 768))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureBootstrapped_RunsScript(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, EnsureBootstrapped(context.Background(), sqlDB, 768))
	assert.NoError(t, mock.ExpectationsWereMet())
}
