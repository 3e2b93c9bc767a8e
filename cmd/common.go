package cmd

import (
	"fmt"

	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"knowgo/src/core/embedding"
	"knowgo/src/core/ingest"
	"knowgo/src/log"
	"knowgo/src/storage/minioctrl"
	"knowgo/src/storage/vectorstore"
	"knowgo/src/storage/weaviate"
)

func openDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return db, nil
}

func buildProvider() (embedding.Provider, error) {
	return embedding.NewProvider(embedding.Config{
		Provider:       viper.GetString("embedding.provider"),
		Model:          viper.GetString("embedding.model"),
		Dimensionality: viper.GetInt("embedding.dimensionality"),
		BaseURL:        viper.GetString("embedding.base_url"),
		APIKey:         viper.GetString("embedding.api_key"),
	})
}

func buildVectorClient() (*vectorstore.Client, error) {
	wc := weaviateClient.New(weaviateClient.Config{
		Host:   viper.GetString("weaviate.host"),
		Scheme: viper.GetString("weaviate.scheme"),
	})
	wsdk := weaviate.NewSDK(wc)

	return vectorstore.NewClient(wsdk, vectorstore.Config{
		Dimensionality: viper.GetInt("embedding.dimensionality"),
		Query:          policyFromViper("vectorstore.query"),
		Upsert:         policyFromViper("vectorstore.upsert"),
		Delete:         policyFromViper("vectorstore.delete"),
	}, log.WithName("vectorstore"))
}

func policyFromViper(prefix string) vectorstore.OpPolicy {
	return vectorstore.OpPolicy{
		MaxAttempts:      viper.GetInt(prefix + ".max_attempts"),
		MinDelay:         viper.GetDuration(prefix + ".min_delay"),
		MaxDelay:         viper.GetDuration(prefix + ".max_delay"),
		Multiplier:       2,
		BreakerThreshold: uint32(viper.GetInt(prefix + ".breaker_threshold")),
		BreakerCooldown:  viper.GetDuration(prefix + ".breaker_cooldown"),
	}
}

func buildContentStore() (*minioctrl.ContentStore, error) {
	return minioctrl.NewContentStore(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
}

func ingestConfigFromViper() ingest.Config {
	return ingest.Config{
		ChunkSize:       viper.GetInt("chunking.max_size"),
		ChunkOverlap:    viper.GetInt("chunking.overlap"),
		EmbedBatchSize:  viper.GetInt("ingest.embed_batch_size"),
		EmbedWorkers:    viper.GetInt("ingest.embed_workers"),
		ChunkRetryLimit: viper.GetInt("ingest.chunk_retry_limit"),
		UpsertBatchSize: viper.GetInt("ingest.upsert_batch_size"),
		UpsertInterval:  viper.GetDuration("ingest.upsert_interval"),
	}
}
