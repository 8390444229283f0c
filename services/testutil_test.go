package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"nft-campaign-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// single connection so concurrent transactions serialize like row locks do
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Campaign{},
		&models.ClaimRecord{},
		&models.SupplyLedger{},
		&models.SupplyReservation{},
		&models.EscrowToken{},
		&models.WalletBinding{},
		&models.UserStats{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestCampaign(status models.CampaignStatus, supply int64) *models.Campaign {
	return &models.Campaign{
		ID:           uuid.NewString(),
		BrandID:      uuid.NewString(),
		Name:         "Test Campaign",
		Slug:         "test-campaign-" + uuid.NewString()[:8],
		Type:         models.CampaignTypeReward,
		Rarity:       models.RarityCommon,
		Distribution: models.DistributionOnDemand,
		TotalSupply:  supply,
		RuleType:     models.RuleOpen,
		Status:       status,
	}
}

func bindWallet(t *testing.T, db *gorm.DB, userID, address string) {
	t.Helper()
	binding := models.WalletBinding{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		Chain:          "ethereum",
		Address:        address,
		IsActive:       true,
	}
	if err := db.Create(&binding).Error; err != nil {
		t.Fatalf("failed to bind wallet: %v", err)
	}
}

// fakeChain is an in-memory ChainGateway for orchestration tests
type fakeChain struct {
	mu        sync.Mutex
	nextToken int64
	owners    map[int64]string

	// submitErrs are consumed one per MintTo/TransferEscrowed call before
	// submissions start succeeding
	submitErrs []error
	batchErr   error
	batchShort int64 // mint this many fewer tokens than requested

	confirmStatus string
	confirmErr    error

	mintCalls     int
	transferCalls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		nextToken:     1,
		owners:        make(map[int64]string),
		confirmStatus: TxConfirmed,
	}
}

func (f *fakeChain) popSubmitErr() error {
	if len(f.submitErrs) == 0 {
		return nil
	}
	err := f.submitErrs[0]
	f.submitErrs = f.submitErrs[1:]
	return err
}

func (f *fakeChain) MintTo(ctx context.Context, recipient, metadataURI string) (*MintResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintCalls++
	if err := f.popSubmitErr(); err != nil {
		return nil, err
	}
	tokenID := f.nextToken
	f.nextToken++
	f.owners[tokenID] = recipient
	return &MintResult{TokenID: tokenID, TxHash: fmt.Sprintf("0xmint%d", tokenID)}, nil
}

func (f *fakeChain) MintBatch(ctx context.Context, recipient string, count int64, metadataURI string) (*BatchMintResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	minted := count - f.batchShort
	tokenIDs := make([]int64, 0, minted)
	for i := int64(0); i < minted; i++ {
		tokenID := f.nextToken
		f.nextToken++
		f.owners[tokenID] = recipient
		tokenIDs = append(tokenIDs, tokenID)
	}
	return &BatchMintResult{TokenIDs: tokenIDs, TxHash: fmt.Sprintf("0xbatch%d", f.nextToken)}, nil
}

func (f *fakeChain) TransferEscrowed(ctx context.Context, tokenID int64, recipient string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls++
	if err := f.popSubmitErr(); err != nil {
		return "", err
	}
	f.owners[tokenID] = recipient
	return fmt.Sprintf("0xtransfer%d", tokenID), nil
}

func (f *fakeChain) WaitForConfirmation(ctx context.Context, txHash string, minConfirmations int) (*ConfirmationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &ConfirmationResult{Status: f.confirmStatus, BlockNumber: 100}, nil
}

func (f *fakeChain) GetOwnership(ctx context.Context, tokenID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[tokenID], nil
}

func (f *fakeChain) HasRewardType(ctx context.Context, rewardType, address string) (bool, error) {
	return false, nil
}
