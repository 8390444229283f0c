// utils/metadata.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"nft-campaign-system/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var r2Client *s3.Client
var r2Bucket string
var cdnBaseURL string

// InitObjectStore configures the R2-compatible bucket that token metadata
// documents are published to.
func InitObjectStore() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")
	cdnBaseURL = os.Getenv("CDN_BASE_URL")
	if cdnBaseURL == "" {
		cdnBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// MetadataStore publishes ERC-721 style metadata JSON and returns the URI
// the mint call attaches to the token.
type MetadataStore struct{}

func NewMetadataStore() *MetadataStore {
	return &MetadataStore{}
}

func (m *MetadataStore) PublishTokenMetadata(ctx context.Context, campaign *models.Campaign, claimID string) (string, error) {
	if r2Client == nil {
		return "", fmt.Errorf("object store not initialized")
	}

	doc := map[string]interface{}{
		"name":        campaign.Name,
		"description": campaign.Description,
		"image":       campaign.ImageURL,
		"attributes": []map[string]interface{}{
			{"trait_type": "Campaign Type", "value": string(campaign.Type)},
			{"trait_type": "Rarity", "value": string(campaign.Rarity)},
			{"trait_type": "Brand", "value": campaign.BrandID},
		},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	key := fmt.Sprintf("metadata/%s/%s.json", campaign.ID, claimID)
	contentType := "application/json"
	_, err = r2Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}

	return fmt.Sprintf("%s/%s", cdnBaseURL, key), nil
}
