package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"knowgo/src/core/ingest"
	jobctrl "knowgo/src/infrastructure/job"
	"knowgo/src/log"
	"knowgo/src/storage/postgres/chunkctrl"
	"knowgo/src/storage/postgres/documentctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background ingestion worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := watermill.NewStdLogger(false, false)

	db, err := openDB()
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

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

	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return err
	}
	chunkService := chunkctrl.NewChunkService(db)

	node, err := snowflake.NewNode(4) // Node number 4 for worker chunk IDs
	if err != nil {
		return err
	}

	pipeline, err := ingest.NewPipeline(
		documentService,
		chunkService,
		contentStore,
		vectorClient,
		provider,
		jobctrl.NewStatusPublisher(amqpPublisher, logger),
		node,
		ingestConfigFromViper(),
		log.WithName("ingest"),
	)
	if err != nil {
		return err
	}

	jobRepo := jobctrl.NewPostgresJobRepository(db)
	jobService := jobctrl.NewJobService(amqpPublisher, jobRepo, logger, pipeline)

	// Add handler for processing jobs
	router.AddNoPublisherHandler(
		"job_processor",
		jobctrl.JobsTopic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Router stopped with error")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down...")
	cancel()
	<-router.Running()
	log.Info("Router stopped")

	return nil
}
