package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodValidate(t *testing.T) {
	cases := []struct {
		p  Period
		ok bool
	}{
		{Period{2025, 1}, true},
		{Period{2025, 12}, true},
		{Period{2025, 0}, false},
		{Period{2025, 13}, false},
		{Period{0, 5}, false},
	}
	for _, tc := range cases {
		err := tc.p.Validate()
		if tc.ok {
			assert.NoError(t, err, "period %v", tc.p)
		} else {
			assert.ErrorIs(t, err, ErrInvalidPeriod, "period %v", tc.p)
		}
	}
}

func TestPeriodNavigation(t *testing.T) {
	assert.Equal(t, Period{2026, 1}, Period{2025, 12}.Next())
	assert.Equal(t, Period{2024, 12}, Period{2025, 1}.Prev())
	assert.True(t, Period{2025, 7}.Before(Period{2025, 8}))
	assert.False(t, Period{2025, 8}.Before(Period{2025, 8}))
	assert.Equal(t, "2025-07", Period{2025, 7}.String())

	p, err := ParsePeriod("2025-09")
	require.NoError(t, err)
	assert.Equal(t, Period{2025, 9}, p)

	_, err = ParsePeriod("2025-13")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-07-15")
	require.NoError(t, err)
	assert.Equal(t, Period{2025, 7}, d.Period())
	assert.Equal(t, "2025-07-15", d.String())

	_, err = ParseDate("15/07/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)

	assert.Error(t, Date{Time: time.Time{}}.Validate())
}

func TestNormalizeName(t *testing.T) {
	got, err := NormalizeName("  Everyday   Expenses ")
	require.NoError(t, err)
	assert.Equal(t, "Everyday Expenses", got)

	_, err = NormalizeName("   ")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{Date: NewDate(2025, 7, 15), Amount: Cents(-4550), AccountID: "a", PayeeID: "p"}
	require.NoError(t, good.Validate())

	bads := []Transaction{
		{Amount: Cents(1), AccountID: "a", PayeeID: "p"},
		{Date: NewDate(2025, 7, 15), PayeeID: "p"},
		{Date: NewDate(2025, 7, 15), AccountID: "a"},
		{Date: NewDate(2025, 7, 15), Amount: Cents(-MaxAbsCents - 1), AccountID: "a", PayeeID: "p"},
	}
	for i, tx := range bads {
		assert.ErrorIs(t, tx.Validate(), ErrInvalidInput, "case %d", i)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{nil, ""},
		{NotFoundf("account %s", "x"), KindNotFound},
		{fmt.Errorf("wrap: %w", ErrInvalidAmount), KindInvalidInput},
		{ErrCategoryGroupRequired, KindInvalidInput},
		{fmt.Errorf("x: %w", ErrStoreUnavailable), KindStoreUnavailable},
		{ErrConstraintViolation, KindConstraintViolation},
		{ErrConflict, KindConflict},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, KindOf(tc.err), "err %v", tc.err)
	}
}
