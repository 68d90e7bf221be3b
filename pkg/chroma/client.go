package chroma

import (
	"context"
	"fmt"
	"os"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"

	"smartshop-backend/pkg/config"
	"smartshop-backend/pkg/logger"
)

const collectionName = "listings"

// maxDocumentChars keeps documents under the embedding model's token limit.
const maxDocumentChars = 2000

// ListingDocument is one observed listing as stored in the index.
type ListingDocument struct {
	ObservationID string
	UserID        string
	ProductID     string
	ProductName   string
	Platform      string
	Title         string
	Price         float64
}

// ListingIndex is a semantic index over observed listings, scoped by user.
type ListingIndex struct {
	client     chroma.Client
	collection chroma.Collection
}

func NewListingIndex(ctx context.Context, cfg *config.Config) (*ListingIndex, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	// The embedding function reads its key from the environment.
	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	opts := []chroma.ClientOption{
		chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
		chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
	}
	switch {
	case cfg.ChromaDatabase != "" && cfg.ChromaTenant != "":
		opts = append(opts, chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant))
	case cfg.ChromaTenant != "":
		opts = append(opts, chroma.WithTenant(cfg.ChromaTenant))
	}

	client, err := chroma.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		ctx,
		collectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	lg := logger.Component("chroma")
	lg.Info().Str("collection", collectionName).Msg("listing index ready")

	return &ListingIndex{client: client, collection: collection}, nil
}

// Upsert indexes a listing under its observation id, so re-indexing the same
// observation never duplicates it.
func (i *ListingIndex) Upsert(ctx context.Context, doc ListingDocument) error {
	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"user_id":    doc.UserID,
		"product_id": doc.ProductID,
		"platform":   doc.Platform,
		"price":      doc.Price,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = i.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(doc.ObservationID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(listingText(doc)),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert listing: %w", err)
	}
	return nil
}

// Search returns the observation ids closest to query among the user's
// listings, nearest first, with their distances.
func (i *ListingIndex) Search(ctx context.Context, userID, query string, limit int) ([]string, []float64, error) {
	results, err := i.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(chroma.EqString("user_id", userID)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query collection: %w", err)
	}

	if results == nil || results.CountGroups() == 0 {
		return []string{}, []float64{}, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return []string{}, []float64{}, nil
	}

	ids := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		ids = append(ids, string(id))
	}

	distances := make([]float64, 0, len(ids))
	if len(distanceGroups) > 0 {
		for _, d := range distanceGroups[0] {
			distances = append(distances, float64(d))
		}
	}
	return ids, distances, nil
}

func listingText(doc ListingDocument) string {
	text := fmt.Sprintf("Product: %s\nListing: %s\nPlatform: %s\nPrice: %.0f TWD", doc.ProductName, doc.Title, doc.Platform, doc.Price)
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}
	return text
}
