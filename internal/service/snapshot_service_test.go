package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/types"
)

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func TestGetHistoryFiltersRange(t *testing.T) {
	snapshots := newFakeSnapshotStore()
	ctx := context.Background()

	for _, d := range []int{1, 5, 10, 20} {
		snapshots.Upsert(ctx, &models.DailySnapshot{
			UserID:        testUser,
			WalletAddress: testWallet,
			SnapshotDate:  day(d),
			TotalNavUSD:   float64(d * 100),
		})
	}

	svc := NewSnapshotService(snapshots, nil)
	got, err := svc.GetHistory(ctx, testUser, testWallet, day(4), day(15))
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d snapshots, want 2 (days 5 and 10)", len(got))
	}
}

func TestGetHistoryRejectsInvertedRange(t *testing.T) {
	svc := NewSnapshotService(newFakeSnapshotStore(), nil)

	_, err := svc.GetHistory(context.Background(), testUser, testWallet, day(10), day(5))
	if err == nil {
		t.Fatal("GetHistory() expected error for inverted range")
	}
	var svcErr *types.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != "INVALID_DATE_RANGE" {
		t.Errorf("error = %v, want ServiceError INVALID_DATE_RANGE", err)
	}
}

func TestGetHistoryRejectsInvalidWallet(t *testing.T) {
	svc := NewSnapshotService(newFakeSnapshotStore(), nil)

	_, err := svc.GetHistory(context.Background(), testUser, "bogus", day(1), day(2))
	if err == nil {
		t.Fatal("GetHistory() expected error for invalid wallet")
	}
}

func TestGetLatestReturnsNilWhenAbsent(t *testing.T) {
	svc := NewSnapshotService(newFakeSnapshotStore(), nil)

	got, err := svc.GetLatest(context.Background(), testUser, testWallet)
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetLatest() = %+v, want nil for wallet with no snapshots", got)
	}
}
