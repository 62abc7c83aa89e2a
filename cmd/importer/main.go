package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"order-store/config"
	"order-store/internal/backend"
	"order-store/internal/broker"
	"order-store/internal/ingest"
	"order-store/internal/models"
	"order-store/internal/service"
	"order-store/internal/store"
	"order-store/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "importer",
	Short:         "Provision the record store and bulk-load CSV data",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env holds what every subcommand needs
type env struct {
	cfg    *config.Config
	store  *store.Store
	logger *zap.Logger
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	b, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		store:  store.NewStore(b, models.DefaultSchema()),
		logger: util.GetLogger(),
	}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("Failed to close backend", zap.Error(err))
	}
	util.SyncLogger()
}

func (e *env) importer(publisher ingest.Publisher) *ingest.Importer {
	return ingest.NewImporter(service.NewOrderService(e.store, nil), e.store, publisher, ingest.Options{
		Concurrency:     e.cfg.Import.Concurrency,
		WritesPerSecond: e.cfg.Import.WritesPerSecond,
	})
}

func printResult(res *ingest.Result) {
	fmt.Printf("%s: imported %d, skipped %d\n", res.Collection, res.Imported, len(res.Skipped))
	for _, s := range res.Skipped {
		fmt.Printf("  row %d %s: %s\n", s.Row, s.Key, s.Reason)
	}
}

func init() {
	ensureSchemaCmd := &cobra.Command{
		Use:   "ensure-schema",
		Short: "Create any missing collections and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			statuses, err := e.store.EnsureSchema(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(statuses))
			for name := range statuses {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%s: %s\n", name, statuses[name])
			}
			return nil
		},
	}

	var (
		collection string
		enqueue    bool
	)
	csvCmd := &cobra.Command{
		Use:   "csv FILE",
		Short: "Import one CSV file into a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if _, err := e.store.EnsureSchema(ctx); err != nil {
				return err
			}

			if enqueue {
				return enqueueFile(ctx, e, collection, args[0])
			}

			res, err := e.importer(nil).ImportFile(ctx, collection, args[0])
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	csvCmd.Flags().StringVarP(&collection, "collection", "c", "", "target collection (Products, Customers or Orders)")
	csvCmd.Flags().BoolVar(&enqueue, "enqueue", false, "publish rows to the ingest topic instead of writing them")
	_ = csvCmd.MarkFlagRequired("collection")

	var dir string
	dirCmd := &cobra.Command{
		Use:   "dir",
		Short: "Import df_<Collection>.csv for every collection found in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if _, err := e.store.EnsureSchema(ctx); err != nil {
				return err
			}
			if dir == "" {
				dir = e.cfg.Import.DataDir
			}

			results, err := e.importer(nil).ImportDir(ctx, dir, []string{
				models.CollectionProducts,
				models.CollectionCustomers,
				models.CollectionOrders,
			})
			for _, res := range results {
				printResult(res)
			}
			return err
		},
	}
	dirCmd.Flags().StringVarP(&dir, "dir", "d", "", "data directory (defaults to IMPORT_DATA_DIR)")

	rootCmd.AddCommand(ensureSchemaCmd, csvCmd, dirCmd)
}

// enqueueFile publishes the rows of a CSV file as ImportRow events for the ingest worker
func enqueueFile(ctx context.Context, e *env, collection, path string) error {
	if !e.cfg.Kafka.Enabled() {
		return fmt.Errorf("%w: --enqueue needs KAFKA_BROKERS", models.ErrInvalidArgument)
	}

	schema, err := e.store.Collection(collection)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, skipped, err := ingest.ReadRecords(f)
	if err != nil {
		return err
	}

	producer := broker.NewProducer(e.cfg.Kafka.Brokers, e.cfg.Kafka.TopicIngest)
	defer producer.Close()

	if err := broker.NewEventPublisher(producer).PublishImportRows(ctx, collection, schema.PrimaryKey, records); err != nil {
		return err
	}

	e.logger.Info("Enqueued import rows",
		zap.String("collection", collection),
		zap.String("topic", e.cfg.Kafka.TopicIngest),
		zap.Int("rows", len(records)),
		zap.Int("malformed", len(skipped)))
	fmt.Printf("%s: enqueued %d, malformed %d\n", collection, len(records), len(skipped))
	return nil
}
