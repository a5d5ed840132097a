package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/garasku/garasku-api/internal/models"
)

func newApprovalRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestApprovalRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	approval := &models.ApprovalRequest{
		Type:         models.ApprovalTypePartReplacement,
		RelatedID:    "book-1",
		RelatedModel: models.RelatedModelBooking,
		Payload:      []byte(`{"partName":"Brake pads","price":40,"quantity":2}`),
		RequestedBy:  "merch-1",
	}
	require.NoError(t, repo.Create(context.Background(), approval))
	require.NotEmpty(t, approval.ID)
	require.Equal(t, models.ApprovalStatusPending, approval.Status)

	rows := sqlmock.NewRows([]string{
		"id", "type", "status", "related_id", "related_model", "payload",
		"requested_by", "reviewed_by", "comment", "requested_at", "reviewed_at",
	}).AddRow(approval.ID, "PART_REPLACEMENT", "PENDING", "book-1", "booking",
		[]byte(`{"partName":"Brake pads","price":40,"quantity":2}`), "merch-1", nil, nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, type, status, related_id")).
		WithArgs(approval.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), approval.ID)
	require.NoError(t, err)
	require.Equal(t, approval.ID, found.ID)
	require.Equal(t, models.ApprovalTypePartReplacement, found.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	rows := sqlmock.NewRows([]string{
		"id", "type", "status", "related_id", "related_model", "payload",
		"requested_by", "reviewed_by", "comment", "requested_at", "reviewed_at",
	}).AddRow("appr-1", "EXTRA_COST", "PENDING", "book-1", "booking", []byte(`{}`),
		"merch-1", nil, nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, type, status, related_id")).
		WithArgs("PENDING", "merch-1").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.ApprovalFilter{
		Status:      []models.ApprovalStatus{models.ApprovalStatusPending},
		RequestedBy: "merch-1",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "appr-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryResolveGuardsPending(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	comment := "approved after call"
	params := ResolveParams{
		ID:         "appr-1",
		Status:     models.ApprovalStatusApproved,
		ReviewedBy: "cust-1",
		ReviewedAt: time.Now().UTC(),
		Comment:    &comment,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Resolve(context.Background(), params))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Resolve(context.Background(), params)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
