package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "knowgo/handler/http"
	"knowgo/src/core/embedding"
	"knowgo/src/core/ingest"
	"knowgo/src/core/retrieval"
	jobctrl "knowgo/src/infrastructure/job"
	"knowgo/src/log"
	"knowgo/src/storage/postgres/chunkctrl"
	"knowgo/src/storage/postgres/documentctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the knowledge engine API server",
	Long:  `The serve command starts an HTTP server that registers documents for ingestion and answers retrieval queries.`,
	Run:   RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	db, err := openDB()
	if err != nil {
		log.Error(err, "Failed to connect to database")
		return
	}

	provider, err := buildProvider()
	if err != nil {
		log.Error(err, "Failed to build embedding provider")
		return
	}

	vectorClient, err := buildVectorClient()
	if err != nil {
		log.Error(err, "Failed to build vector store client")
		return
	}

	contentStore, err := buildContentStore()
	if err != nil {
		log.Error(err, "Failed to build content store")
		return
	}

	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		log.Error(err, "Failed to initialize document service")
		return
	}
	chunkService := chunkctrl.NewChunkService(db)

	// Initialize AMQP publisher for job dispatch and status events
	wmLogger := watermill.NewStdLogger(false, false)
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		wmLogger,
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP publisher")
		return
	}
	defer amqpPublisher.Close()

	node, err := snowflake.NewNode(3) // Node number 3 for pipeline chunk IDs
	if err != nil {
		log.Error(err, "Failed to create snowflake node")
		return
	}

	pipeline, err := ingest.NewPipeline(
		documentService,
		chunkService,
		contentStore,
		vectorClient,
		provider,
		jobctrl.NewStatusPublisher(amqpPublisher, wmLogger),
		node,
		ingestConfigFromViper(),
		log.WithName("ingest"),
	)
	if err != nil {
		log.Error(err, "Failed to build ingestion pipeline")
		return
	}

	jobRepo := jobctrl.NewPostgresJobRepository(db)
	jobService := jobctrl.NewJobService(amqpPublisher, jobRepo, wmLogger, pipeline)

	engine, err := retrieval.NewEngine(
		provider,
		vectorClient,
		viper.GetDuration("retrieval.timeout"),
		log.WithName("retrieval"),
	)
	if err != nil {
		log.Error(err, "Failed to build retrieval engine")
		return
	}

	var lister httpHdlr.ModelLister
	if local, ok := provider.(*embedding.Local); ok {
		lister = local
	}

	handler := httpHdlr.NewHandler(
		documentService,
		pipeline,
		jobService,
		engine,
		provider,
		lister,
	)

	// Setup gin router
	r := gin.Default()

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout := viper.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
	} else {
		if err := sqlDB.Close(); err != nil {
			log.Error(err, "Error closing database connection")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
}
