package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/cli/config"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/service/triage"
	"github.com/vaidya-health/vaidya/pkg/usecase"
	"github.com/vaidya-health/vaidya/pkg/utils/safe"
)

func cmdPredict() *cli.Command {
	var inputPath string
	var jsonOutput bool
	var withContext bool
	var topFeatures int
	var compCfg componentConfig
	var artifactCfg config.Artifact

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "JSON file holding one patient record (- reads stdin)",
			Value:       "-",
			Destination: &inputPath,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the result as JSON",
			Destination: &jsonOutput,
		},
		&cli.BoolFlag{
			Name:        "with-context",
			Usage:       "Retrieve medical context from the document repository",
			Destination: &withContext,
		},
		&cli.IntFlag{
			Name:        "top-features",
			Usage:       "Number of feature attributions to show",
			Value:       5,
			Destination: &topFeatures,
		},
	}
	flags = append(flags, compCfg.Flags()...)
	flags = append(flags, artifactCfg.Flags()...)

	return &cli.Command{
		Name:    "predict",
		Aliases: []string{"p"},
		Usage:   "Triage one patient record with the trained models",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			record, err := readRecord(ctx, inputPath)
			if err != nil {
				return err
			}

			store, closeStore, err := artifactCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to open artifact store")
			}
			defer closeStore()
			loader := triage.NewLoader(store)

			opts := []usecase.Option{usecase.WithTopFeatures(topFeatures)}
			if withContext {
				comp, err := buildComponents(ctx, &compCfg)
				if err != nil {
					return err
				}
				defer comp.Close()
				opts = append(opts, usecase.WithRetriever(comp.retriever))
			}

			res, err := usecase.New(loader, opts...).Triage.Predict(ctx, record)
			if err != nil {
				return err
			}
			if !withContext {
				res.Errors = nil
			}

			if jsonOutput {
				return writeJSON(os.Stdout, res)
			}
			printTriage(os.Stdout, res)
			return nil
		},
	}
}

func readRecord(ctx context.Context, path string) (model.PatientRecord, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		// #nosec G304 - path is expected to be provided by CLI argument
		f, err := os.Open(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open patient record", goerr.V("path", path))
		}
		defer safe.Close(ctx, f)
		r = f
	}

	var record model.PatientRecord
	if err := json.NewDecoder(r).Decode(&record); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "patient record is not a JSON object", goerr.V("error", err.Error()))
	}
	return record, nil
}
