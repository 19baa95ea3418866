package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/repository"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
)

type mockCreditRepo struct {
	batches      []models.CreditBatch
	transactions []models.CreditTransaction
	granted      []models.CreditBatch
	grantedTypes []models.CreditTransactionType
	adjustedDown []int
	deductErr    error
	adjustErr    error
	expireCount  int
	expireCalls  int
	err          error
}

func (m *mockCreditRepo) ListBatches(ctx context.Context, studentID string) ([]models.CreditBatch, error) {
	return m.batches, m.err
}

func (m *mockCreditRepo) ListTransactions(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error) {
	return m.transactions, m.err
}

func (m *mockCreditRepo) ActiveBalance(ctx context.Context, studentID string) (int, error) {
	total := 0
	for _, b := range m.batches {
		total += b.ClassesRemaining
	}
	return total, m.err
}

func (m *mockCreditRepo) Summary(ctx context.Context, studentID string) (*models.CreditSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.CreditSummary{StudentID: studentID}, nil
}

func (m *mockCreditRepo) DeductOne(ctx context.Context, p repository.DeductParams) (*models.CreditTransaction, error) {
	if m.deductErr != nil {
		return nil, m.deductErr
	}
	return &models.CreditTransaction{StudentID: p.StudentID, Type: p.Type, Amount: -1, BalanceAfter: 4}, nil
}

func (m *mockCreditRepo) Grant(ctx context.Context, batch *models.CreditBatch, txType models.CreditTransactionType, notes string) error {
	if m.err != nil {
		return m.err
	}
	batch.ID = "batch-1"
	m.granted = append(m.granted, *batch)
	m.grantedTypes = append(m.grantedTypes, txType)
	return nil
}

func (m *mockCreditRepo) AdjustDown(ctx context.Context, studentID string, amount int, notes string) error {
	if m.adjustErr != nil {
		return m.adjustErr
	}
	m.adjustedDown = append(m.adjustedDown, amount)
	return nil
}

func (m *mockCreditRepo) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	m.expireCalls++
	if m.err != nil {
		return 0, m.err
	}
	n := m.expireCount
	m.expireCount = 0
	return n, nil
}

type mockStudentReader struct {
	students map[string]models.StudentDetail
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func newCreditSvc(repo *mockCreditRepo, students *mockStudentReader) *CreditService {
	if students == nil {
		students = &mockStudentReader{students: map[string]models.StudentDetail{
			"st-1": {Student: models.Student{ID: "st-1", FullName: "Jane Doe", FrequencyCode: "2x", Active: true}},
		}}
	}
	svc := NewCreditService(repo, students, validator.New(), zap.NewNop(), CreditServiceConfig{})
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateCreditBalanceExpiry(t *testing.T) {
	repo := &mockCreditRepo{}
	svc := newCreditSvc(repo, nil)

	batch, err := svc.CreateCreditBalance(context.Background(), CreateCreditBalanceRequest{
		StudentID:     "st-1",
		Classes:       8,
		PricePerClass: 1500,
		FrequencyCode: "2x",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, batch.ClassesRemaining)
	assert.Equal(t, models.CreditBatchStatusActive, batch.Status)
	// 60-day validity by default.
	assert.Equal(t, time.Date(2026, 5, 9, 12, 0, 0, 0, time.UTC), batch.ExpiresAt)
	require.Len(t, repo.grantedTypes, 1)
	assert.Equal(t, models.CreditTxPurchase, repo.grantedTypes[0])
}

func TestCreateCreditBalanceUnknownStudent(t *testing.T) {
	svc := newCreditSvc(&mockCreditRepo{}, &mockStudentReader{})

	_, err := svc.CreateCreditBalance(context.Background(), CreateCreditBalanceRequest{
		StudentID:     "missing",
		Classes:       4,
		FrequencyCode: "2x",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeductCreditNoCredits(t *testing.T) {
	repo := &mockCreditRepo{deductErr: sql.ErrNoRows}
	svc := newCreditSvc(repo, nil)

	_, err := svc.DeductCredit(context.Background(), "st-1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoCreditsAvailable.Code, appErrors.FromError(err).Code)
}

func TestAdjustCreditsUp(t *testing.T) {
	repo := &mockCreditRepo{}
	svc := newCreditSvc(repo, nil)

	err := svc.AdjustCredits(context.Background(), AdjustCreditsRequest{
		StudentID: "st-1",
		Amount:    3,
		Notes:     "goodwill credit",
	})
	require.NoError(t, err)
	require.Len(t, repo.granted, 1)
	assert.Equal(t, 3, repo.granted[0].ClassesRemaining)
	assert.Zero(t, repo.granted[0].PricePerClass)
	assert.Equal(t, models.CreditTxAdjustment, repo.grantedTypes[0])
}

func TestAdjustCreditsDownInsufficient(t *testing.T) {
	repo := &mockCreditRepo{adjustErr: sql.ErrNoRows}
	svc := newCreditSvc(repo, nil)

	err := svc.AdjustCredits(context.Background(), AdjustCreditsRequest{
		StudentID: "st-1",
		Amount:    -5,
		Notes:     "correction",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientCredits.Code, appErrors.FromError(err).Code)
	// Nothing was deducted when the balance could not cover the amount.
	assert.Empty(t, repo.adjustedDown)
}

func TestAdjustCreditsDown(t *testing.T) {
	repo := &mockCreditRepo{}
	svc := newCreditSvc(repo, nil)

	err := svc.AdjustCredits(context.Background(), AdjustCreditsRequest{
		StudentID: "st-1",
		Amount:    -2,
		Notes:     "billing fix",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, repo.adjustedDown)
}

func TestExpireCreditsIdempotent(t *testing.T) {
	repo := &mockCreditRepo{expireCount: 7}
	svc := newCreditSvc(repo, nil)

	expired, err := svc.ExpireCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, expired)

	// A second sweep finds nothing left to expire.
	expired, err = svc.ExpireCredits(context.Background())
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Equal(t, 2, repo.expireCalls)
}

func TestStatementCSV(t *testing.T) {
	repo := &mockCreditRepo{transactions: []models.CreditTransaction{
		{Type: models.CreditTxPurchase, Amount: 8, BalanceAfter: 8, Notes: "purchase of 8 classes", CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{Type: models.CreditTxAttendance, Amount: -1, BalanceAfter: 7, Notes: "class attendance", CreatedAt: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)},
	}}
	svc := newCreditSvc(repo, nil)

	payload, contentType, err := svc.Statement(context.Background(), "st-1", StatementCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	// Each field must land under its header column.
	assert.Contains(t, string(payload), "Date,Type,Amount,Balance After,Notes")
	assert.Contains(t, string(payload), "2026-03-01 10:00,purchase,+8,8,purchase of 8 classes")
	assert.Contains(t, string(payload), "2026-03-02 18:00,attendance,-1,7,class attendance")
}

func TestStatementUnsupportedFormat(t *testing.T) {
	svc := newCreditSvc(&mockCreditRepo{}, nil)

	_, _, err := svc.Statement(context.Background(), "st-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
