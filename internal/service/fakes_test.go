package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
)

// fakeAggClient returns canned holdings or a configured error
type fakeAggClient struct {
	tokens    []models.Token
	protocols []models.RawProtocol
	err       error
}

func (f *fakeAggClient) GetTokenList(ctx context.Context, walletAddress string) ([]models.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

func (f *fakeAggClient) GetProtocolList(ctx context.Context, walletAddress string) ([]models.RawProtocol, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.protocols, nil
}

// fakePriceClient serves a fixed price map
type fakePriceClient struct {
	prices map[string]float64
	calls  int
}

func (f *fakePriceClient) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	f.calls++
	return f.prices, nil
}

// fakeSnapshotStore keeps snapshots in memory keyed by (user, wallet, day)
type fakeSnapshotStore struct {
	snapshots map[string]*models.DailySnapshot
	upserts   int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snapshots: make(map[string]*models.DailySnapshot)}
}

func snapshotKey(userID, wallet string, date time.Time) string {
	return fmt.Sprintf("%s|%s|%s", userID, wallet, date.Format("2006-01-02"))
}

func (f *fakeSnapshotStore) Upsert(ctx context.Context, snapshot *models.DailySnapshot) error {
	f.upserts++
	copied := *snapshot
	f.snapshots[snapshotKey(snapshot.UserID, snapshot.WalletAddress, snapshot.SnapshotDate)] = &copied
	return nil
}

func (f *fakeSnapshotStore) GetLatest(ctx context.Context, userID, walletAddress string) (*models.DailySnapshot, error) {
	var latest *models.DailySnapshot
	for _, s := range f.snapshots {
		if s.UserID != userID {
			continue
		}
		if walletAddress != "" && s.WalletAddress != walletAddress {
			continue
		}
		if latest == nil || s.SnapshotDate.After(latest.SnapshotDate) {
			latest = s
		}
	}
	return latest, nil
}

func (f *fakeSnapshotStore) GetByDateRange(ctx context.Context, userID, walletAddress string, from, to time.Time) ([]*models.DailySnapshot, error) {
	var out []*models.DailySnapshot
	for _, s := range f.snapshots {
		if s.UserID != userID {
			continue
		}
		if walletAddress != "" && s.WalletAddress != walletAddress {
			continue
		}
		if s.SnapshotDate.Before(from) || s.SnapshotDate.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// fakeHistoryStore records inserted history rows in memory
type fakeHistoryStore struct {
	entries []models.PositionHistory
}

func (f *fakeHistoryStore) BatchInsert(ctx context.Context, entries []models.PositionHistory) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeHistoryStore) ListUserHistory(ctx context.Context, userID string, upTo time.Time) ([]models.PositionHistory, error) {
	var out []models.PositionHistory
	for _, e := range f.entries {
		if e.UserID == userID && !e.Date.After(upTo) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistoryStore) ListActivePositions(ctx context.Context, userID, walletAddress string) ([]models.PositionHistory, error) {
	latest := make(map[string]models.PositionHistory)
	for _, e := range f.entries {
		if e.UserID != userID || e.WalletAddress != walletAddress {
			continue
		}
		// Later entries win same-day ties, mirroring version-ordered reads
		if prev, ok := latest[e.PositionID]; !ok || !e.Date.Before(prev.Date) {
			latest[e.PositionID] = e
		}
	}
	var out []models.PositionHistory
	for _, e := range latest {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistoryStore) MarkInactive(ctx context.Context, userID, walletAddress string, positions []models.PositionHistory, date time.Time) error {
	for _, p := range positions {
		f.entries = append(f.entries, models.PositionHistory{
			UserID:        userID,
			WalletAddress: walletAddress,
			ProtocolName:  p.ProtocolName,
			PositionID:    p.PositionID,
			Date:          date,
			IsActive:      false,
		})
	}
	return nil
}

// fakeNavStore keeps NAV periods in memory keyed by (user, year, month)
type fakeNavStore struct {
	periods map[string]*models.NavSettings
}

func newFakeNavStore() *fakeNavStore {
	return &fakeNavStore{periods: make(map[string]*models.NavSettings)}
}

func navKey(userID string, year, month int) string {
	return fmt.Sprintf("%s|%d-%02d", userID, year, month)
}

func (f *fakeNavStore) Get(ctx context.Context, userID string, year, month int) (*models.NavSettings, error) {
	if s, ok := f.periods[navKey(userID, year, month)]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeNavStore) Upsert(ctx context.Context, settings *models.NavSettings) error {
	copied := *settings
	f.periods[navKey(settings.UserID, settings.Year, settings.Month)] = &copied
	return nil
}

func (f *fakeNavStore) GetPrior(ctx context.Context, userID string, year, month int) (*models.NavSettings, error) {
	if month == 1 {
		return f.Get(ctx, userID, year-1, 12)
	}
	return f.Get(ctx, userID, year, month-1)
}

func (f *fakeNavStore) Delete(ctx context.Context, userID string, year, month int) error {
	key := navKey(userID, year, month)
	if _, ok := f.periods[key]; !ok {
		return errors.New("not found")
	}
	delete(f.periods, key)
	return nil
}
