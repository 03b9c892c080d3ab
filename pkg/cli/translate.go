package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/cli/config"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/translation"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

func cmdTranslate() *cli.Command {
	var source string
	var target string
	var lines bool
	var llmCfg config.LLM
	var cacheCfg config.Cache

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "from",
			Usage:       "Source language code (detected when omitted)",
			Destination: &source,
		},
		&cli.StringFlag{
			Name:        "to",
			Usage:       "Target language code",
			Value:       string(types.DefaultLanguage),
			Destination: &target,
		},
		&cli.BoolFlag{
			Name:        "lines",
			Usage:       "Read stdin and translate every line separately",
			Destination: &lines,
		},
	}
	flags = append(flags, llmCfg.Flags()...)
	flags = append(flags, cacheCfg.Flags()...)

	return &cli.Command{
		Name:      "translate",
		Usage:     "Translate text between supported languages",
		ArgsUsage: "TEXT",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			var texts []string
			if lines {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					texts = append(texts, scanner.Text())
				}
				if err := scanner.Err(); err != nil {
					return goerr.Wrap(err, "failed to read stdin")
				}
			} else {
				texts = []string{strings.Join(c.Args().Slice(), " ")}
			}
			text := strings.Join(texts, "\n")
			if strings.TrimSpace(text) == "" {
				return goerr.New("text is required")
			}

			llmClient, err := llmCfg.Configure(ctx)
			if err != nil {
				return err
			}
			cache, closeCache, err := cacheCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closeCache()

			opts := []translation.Option{
				translation.WithCache(cache),
			}
			if llmClient != nil {
				backend, err := translation.NewLLMBackend(llmClient)
				if err != nil {
					return err
				}
				opts = append(opts, translation.WithBackend(backend))
			} else {
				logging.Default().Warn("LLM not configured, text is returned untranslated")
			}
			svc := translation.New(opts...)

			src := types.LanguageCode(source)
			if src == "" {
				src = svc.DetectLanguage(text)
			}
			out, err := svc.BatchTranslate(ctx, texts, src, types.LanguageCode(target))
			for _, line := range out {
				fmt.Fprintln(os.Stdout, line)
			}
			if err != nil {
				degradedColor.Fprintf(os.Stderr, "translation degraded: %s\n", err.Error())
			}
			return nil
		},
	}
}

func cmdDetect() *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Detect the language of text",
		ArgsUsage: "TEXT",
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return goerr.New("text is required")
			}
			code := translation.DetectLanguage(text)
			lang, ok := translation.LookupLanguage(code)
			if !ok {
				fmt.Fprintln(os.Stdout, code)
				return nil
			}
			labelColor.Fprintf(os.Stdout, "%s", code)
			fmt.Fprintf(os.Stdout, "\t%s (%s)\t%s\n", lang.Name, lang.NativeName, lang.Script)
			return nil
		},
	}
}
