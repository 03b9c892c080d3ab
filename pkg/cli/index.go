package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

func cmdIndex() *cli.Command {
	var patientID string
	var docType string
	var seedKnowledge bool
	var reset bool
	var compCfg componentConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "patient-id",
			Usage:       "Patient the documents belong to",
			Destination: &patientID,
		},
		&cli.StringFlag{
			Name:        "type",
			Usage:       "Document type recorded as the chunk source (ehr, lab, medications, medical, pdf)",
			Value:       string(types.DocTypeEHR),
			Destination: &docType,
		},
		&cli.BoolFlag{
			Name:        "knowledge",
			Usage:       "Index the configured medical knowledge base",
			Destination: &seedKnowledge,
		},
		&cli.BoolFlag{
			Name:        "reset",
			Usage:       "Delete every indexed document before indexing",
			Destination: &reset,
		},
	}
	flags = append(flags, compCfg.Flags()...)

	return &cli.Command{
		Name:      "index",
		Aliases:   []string{"i"},
		Usage:     "Chunk, embed and store text documents in the document repository",
		ArgsUsage: "[FILE...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()
			dt := types.DocType(docType)
			if !dt.IsValid() {
				return goerr.New("invalid document type", goerr.V("type", docType))
			}
			if c.Args().Len() == 0 && !seedKnowledge && !reset {
				return goerr.New("no documents given; pass files or --knowledge")
			}

			comp, err := buildComponents(ctx, &compCfg)
			if err != nil {
				return err
			}
			defer comp.Close()

			if compCfg.repo.Backend() == "memory" {
				logger.Warn("Indexing into the in-memory repository; documents are lost on exit")
			}

			if reset {
				if err := comp.index.Clear(ctx); err != nil {
					return err
				}
				logger.Info("Document repository cleared")
			}

			if seedKnowledge {
				if err := comp.seedKnowledge(ctx); err != nil {
					return err
				}
			}

			for _, path := range c.Args().Slice() {
				// #nosec G304 - path is expected to be provided by CLI argument
				data, err := os.ReadFile(path)
				if err != nil {
					return goerr.Wrap(err, "failed to read document", goerr.V("path", path))
				}
				n, err := comp.retriever.AddDocument(ctx, string(data), patientID, dt.String())
				if err != nil {
					return goerr.Wrap(err, "failed to index document", goerr.V("path", path))
				}
				logger.Info("Document indexed", "path", path, "chunks", n, "patient_id", patientID, "type", dt)
			}

			logger.Info("Indexing completed", "documents", comp.index.Len())
			return nil
		},
	}
}
