package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"nft-campaign-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// walletFromIdentity matches the identity service wallet payload
type walletFromIdentity struct {
	ExternalUserID string    `json:"external_user_id"`
	Chain          string    `json:"chain"`
	Address        string    `json:"address"`
	IsActive       bool      `json:"is_active"`
	BoundAt        time.Time `json:"bound_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// statsFromIdentity matches the identity service engagement payload
type statsFromIdentity struct {
	ExternalUserID string    `json:"external_user_id"`
	ReadingStreak  int       `json:"reading_streak"`
	Communities    []string  `json:"communities"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IdentitySyncWorker mirrors wallet bindings and engagement stats from the
// identity service so eligibility context can be built from local reads.
type IdentitySyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	lastSync     time.Time
}

func NewIdentitySyncWorker(db *gorm.DB, identityServiceURL, serviceToken string) *IdentitySyncWorker {
	return &IdentitySyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      identityServiceURL,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		lastSync: time.Now().UTC().Add(-24 * time.Hour),
	}
}

func (w *IdentitySyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Identity Sync Worker (identity-service → wallet_bindings, user_stats)…")
	go w.run(ctx)
}

func (w *IdentitySyncWorker) run(ctx context.Context) {
	// Initial backfill from epoch
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial identity sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tickTime := time.Now().UTC()
			if err := w.syncBatch(ctx, w.lastSync); err != nil {
				log.Printf("❌ Identity sync batch failed: %v", err)
				// keep the same window for the next tick
				continue
			}
			w.lastSync = tickTime
		case <-ctx.Done():
			log.Println("⏹️ Identity Sync Worker stopped")
			return
		}
	}
}

func (w *IdentitySyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	if err := w.syncWallets(ctx, since); err != nil {
		return err
	}
	return w.syncStats(ctx, since)
}

func (w *IdentitySyncWorker) syncWallets(ctx context.Context, since time.Time) error {
	var response struct {
		Wallets []walletFromIdentity `json:"wallets"`
	}
	if err := w.fetch(ctx, "/api/v1/public/wallets", since, &response); err != nil {
		return err
	}
	if len(response.Wallets) == 0 {
		return nil
	}

	var upsertCount, errorCount int
	for _, remote := range response.Wallets {
		binding := models.WalletBinding{
			ID:             uuid.NewString(),
			ExternalUserID: remote.ExternalUserID,
			Chain:          remote.Chain,
			Address:        remote.Address,
			IsActive:       remote.IsActive,
			BoundAt:        remote.BoundAt,
		}
		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"chain", "address", "is_active", "bound_at", "updated_at",
			}),
		}).Create(&binding).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert wallet binding (user=%q): %v", remote.ExternalUserID, err)
		} else {
			upsertCount++
		}
	}
	log.Printf("[SYNC] ✅ Synced %d wallet binding(s) (%d upserted, %d errors)", len(response.Wallets), upsertCount, errorCount)
	return nil
}

func (w *IdentitySyncWorker) syncStats(ctx context.Context, since time.Time) error {
	var response struct {
		Stats []statsFromIdentity `json:"stats"`
	}
	if err := w.fetch(ctx, "/api/v1/public/engagement", since, &response); err != nil {
		return err
	}
	if len(response.Stats) == 0 {
		return nil
	}

	var upsertCount, errorCount int
	for _, remote := range response.Stats {
		stats := models.UserStats{
			ExternalUserID: remote.ExternalUserID,
			ReadingStreak:  remote.ReadingStreak,
			Communities:    remote.Communities,
			SyncedAt:       time.Now().UTC(),
		}
		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"reading_streak", "communities", "synced_at", "updated_at",
			}),
		}).Create(&stats).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert user stats (user=%q): %v", remote.ExternalUserID, err)
		} else {
			upsertCount++
		}
	}
	log.Printf("[SYNC] ✅ Synced %d engagement record(s) (%d upserted, %d errors)", len(response.Stats), upsertCount, errorCount)
	return nil
}

func (w *IdentitySyncWorker) fetch(ctx context.Context, endpointPath string, since time.Time, out interface{}) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid identity service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpointURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to identity service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("identity service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode identity service response: %w", err)
	}
	return nil
}
