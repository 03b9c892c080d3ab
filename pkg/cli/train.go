package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/cli/config"
	"github.com/vaidya-health/vaidya/pkg/service/triage"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
	"github.com/vaidya-health/vaidya/pkg/utils/safe"
)

func cmdTrain() *cli.Command {
	var configPath string
	var dataPath string
	var exportPath string
	var samples int
	var seed int
	var testRatio float64
	var artifactCfg config.Artifact

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to TOML configuration file (built-in defaults when omitted)",
			Sources:     cli.EnvVars("VAIDYA_CONFIG"),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "data",
			Aliases:     []string{"d"},
			Usage:       "Training CSV with risk_level and department columns (synthetic data when omitted)",
			Destination: &dataPath,
		},
		&cli.IntFlag{
			Name:        "samples",
			Usage:       "Number of synthetic rows to generate",
			Value:       1000,
			Destination: &samples,
		},
		&cli.IntFlag{
			Name:        "seed",
			Usage:       "Seed for synthetic data and the train/test split",
			Value:       42,
			Destination: &seed,
		},
		&cli.FloatFlag{
			Name:        "test-ratio",
			Usage:       "Share of rows held out for evaluation (0 trains on every row)",
			Value:       0.2,
			Destination: &testRatio,
		},
		&cli.StringFlag{
			Name:        "export-csv",
			Usage:       "Write the training dataset to this CSV path",
			Destination: &exportPath,
		},
	}
	flags = append(flags, artifactCfg.Flags()...)

	return &cli.Command{
		Name:    "train",
		Aliases: []string{"t"},
		Usage:   "Train the risk and department models and write artifacts",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			appCfg, err := config.LoadAppConfiguration(configPath)
			if err != nil {
				return goerr.Wrap(err, "failed to load configuration")
			}

			ds, err := loadDataset(ctx, dataPath, samples, uint64(seed))
			if err != nil {
				return err
			}
			logger.Info("Dataset ready", "rows", ds.Len(), "source", dataSource(dataPath))

			if exportPath != "" {
				if err := exportDataset(exportPath, ds, appCfg.Features.Fields()); err != nil {
					return err
				}
				logger.Info("Dataset exported", "path", exportPath)
			}

			trainSet, testSet := ds, (*triage.Dataset)(nil)
			if testRatio > 0 {
				trainSet, testSet, err = ds.Split(testRatio, uint64(seed))
				if err != nil {
					return err
				}
			}

			bundle, err := triage.Train(ctx, trainSet, appCfg.Features, appCfg.Model)
			if err != nil {
				return goerr.Wrap(err, "failed to train models")
			}

			if testSet != nil {
				eval, err := triage.Evaluate(ctx, bundle, testSet)
				if err != nil {
					return err
				}
				printReport(os.Stdout, "Risk model", eval.Risk)
				printReport(os.Stdout, "Department model", eval.Department)
			}

			store, closeStore, err := artifactCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to open artifact store")
			}
			defer closeStore()

			if err := bundle.Save(ctx, store); err != nil {
				return goerr.Wrap(err, "failed to save model artifacts")
			}
			logger.Info("Model artifacts saved",
				"bundle_id", bundle.ID,
				"rows", bundle.Rows,
				"features", bundle.Preprocessor.Len(),
				"artifact", slog.GroupValue(artifactCfg.LogAttrs()...),
			)
			return nil
		},
	}
}

func dataSource(path string) string {
	if path == "" {
		return "synthetic"
	}
	return path
}

func loadDataset(ctx context.Context, path string, samples int, seed uint64) (*triage.Dataset, error) {
	if path == "" {
		if samples <= 0 {
			return nil, goerr.New("samples must be positive", goerr.V("samples", samples))
		}
		return triage.GenerateSynthetic(samples, seed), nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open dataset", goerr.V("path", path))
	}
	defer safe.Close(ctx, f)

	return triage.LoadCSV(ctx, f)
}

func exportDataset(path string, ds *triage.Dataset, columns []string) error {
	// #nosec G304 - path is expected to be provided by CLI argument
	f, err := os.Create(path)
	if err != nil {
		return goerr.Wrap(err, "failed to create dataset file", goerr.V("path", path))
	}
	if err := triage.WriteCSV(f, ds, columns); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return goerr.Wrap(err, "failed to close dataset file", goerr.V("path", path))
	}
	return nil
}
