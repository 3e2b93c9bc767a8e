package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"knowgo/src/core/ingest"
	"knowgo/src/core/knowledge"
	"knowgo/src/log"
	"knowgo/src/storage/postgres/chunkctrl"
	"knowgo/src/storage/postgres/documentctrl"
)

var (
	ingestScope  string
	ingestTenant string
	ingestUser   string
	ingestLabel  string
)

// ingestCmd ingests local files directly, bypassing the job queue. Meant
// for seeding the system namespace and for local experiments.
var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest local text files into the knowledge engine",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	settingDefaultConfig()

	ingestCmd.Flags().StringVar(&ingestScope, "scope", "system", "owner scope: system, tenant or user")
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "tenant id for tenant scope")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "user id for user scope")
	ingestCmd.Flags().StringVar(&ingestLabel, "label", "", "source label recorded on each document")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var scope knowledge.Scope
	switch ingestScope {
	case "system":
		scope = knowledge.SystemScope
	case "tenant":
		scope = knowledge.TenantScope(ingestTenant)
	case "user":
		scope = knowledge.UserScope(ingestUser)
	}
	if !scope.Valid() {
		return fmt.Errorf("invalid scope %q (tenant/user scopes need an id)", ingestScope)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	provider, err := buildProvider()
	if err != nil {
		return err
	}

	vectorClient, err := buildVectorClient()
	if err != nil {
		return err
	}

	contentStore, err := buildContentStore()
	if err != nil {
		return err
	}

	ctx := context.Background()
	bucket := viper.GetString("minio.documents_bucket")
	if err := contentStore.EnsureBucketExists(ctx, bucket); err != nil {
		return err
	}

	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return err
	}
	chunkService := chunkctrl.NewChunkService(db)

	node, err := snowflake.NewNode(5) // Node number 5 for CLI chunk IDs
	if err != nil {
		return err
	}

	pipeline, err := ingest.NewPipeline(
		documentService,
		chunkService,
		contentStore,
		vectorClient,
		provider,
		nil,
		node,
		ingestConfigFromViper(),
		log.WithName("ingest"),
	)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(args)), "ingesting")
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %v", path, err)
		}

		objectName := uuid.New().String() + filepath.Ext(path)
		ref, err := contentStore.Put(ctx, bucket, objectName, data)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %v", path, err)
		}

		label := ingestLabel
		if label == "" {
			label = filepath.Base(path)
		}
		doc, err := documentService.Create(ctx, scope, ref, label)
		if err != nil {
			return err
		}

		if err := pipeline.Ingest(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to ingest %s (document %d): %v", path, doc.ID, err)
		}
		bar.Add(1)
	}

	return nil
}
