package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/spf13/cobra"

	"photosweep/config"
	"photosweep/imageprocessor"
	"photosweep/logging"
	"photosweep/matcher"
	"photosweep/scanner"
	"photosweep/signalhandler"
	"photosweep/types"
	"photosweep/utils"
)

var appname = "photosweep"

type cliFlags struct {
	configFile string
	logFile    string
	logLevel   string
	workers    int
	summary    bool
	progress   bool
	showConfig bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &cliFlags{}
	cmd := &cobra.Command{
		Use:   appname + " <folder> [true|false]",
		Short: "photosweep finds blurry and duplicate photos in a folder",
		Long: `photosweep scans a folder of images and writes one JSON report to stdout:
images judged blurry, pairs of identical or visually similar images and
files that could not be processed.

The second argument controls recursion: "true" scans subfolders, any other
value scans only the folder itself. Without it subfolders are scanned.
A folder whose name starts with "-" goes after "--".`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags, args, stdout, stderr)
		},
	}

	// a bad invocation is still answered with a report
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return writeReport(stdout, argumentErrorReport("invalid invocation: "+err.Error()))
	})

	cmd.Flags().StringVar(&flags.configFile, "config", "", "config file (default is internal)")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "log output file (default is stderr)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (ERROR|WARN|INFO|DEBUG), default WARN")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "number of files processed in parallel (default from CPU count)")
	cmd.Flags().BoolVar(&flags.summary, "summary", false, "print a summary table to stderr")
	cmd.Flags().BoolVar(&flags.progress, "progress", false, "log progress while scanning")
	cmd.Flags().BoolVar(&flags.showConfig, "show-config", false, "print the effective configuration to stderr")
	return cmd
}

func loadConfig(flags *cliFlags) (*config.Config, error) {
	var data []byte
	if flags.configFile != "" {
		fp, err := filepath.Abs(flags.configFile)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot convert '%s' to absolute path", flags.configFile)
		}
		data, err = os.ReadFile(fp)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", fp)
		}
	}
	conf, err := config.LoadConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load config '%s'", flags.configFile)
	}

	if flags.logFile != "" {
		conf.Log.File = flags.logFile
	}
	if flags.logLevel != "" {
		conf.Log.Level = flags.logLevel
	}
	if flags.workers > 0 {
		conf.Scan.Workers = flags.workers
	}
	return conf, nil
}

// run loads the configuration, scans and writes the report. Only a broken
// configuration makes it fail; every scan outcome is a report.
func run(ctx context.Context, flags *cliFlags, args []string, stdout, stderr io.Writer) error {
	conf, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if err := logging.SetupLogger(conf.Log.Level, conf.Log.File); err != nil {
		return err
	}
	defer logging.CloseLogger()

	if flags.showConfig {
		if err := conf.Encode(stderr); err != nil {
			logging.LogError("%v", err)
		}
	}

	report := buildReport(ctx, conf, flags.progress, args)
	if err := writeReport(stdout, report); err != nil {
		return err
	}

	if flags.summary {
		printSummary(stderr, report)
	}
	return nil
}

func writeReport(w io.Writer, report types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return errors.Wrap(err, "cannot write report")
	}
	return nil
}

func buildReport(ctx context.Context, conf *config.Config, progress bool, args []string) types.Report {
	if len(args) == 0 {
		return argumentErrorReport("no folder to scan was given")
	}
	folder := args[0]
	recursive := true
	if len(args) > 1 {
		recursive = utils.ParseRecursiveFlag(args[1], true)
	}

	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		logging.LogError("not a folder: %s", folder)
		return pathErrorReport(folder)
	}

	readers := []imageprocessor.TakenDateReader{imageprocessor.ImagemetaReader{}}
	if conf.Metadata.Exiftool {
		et, err := imageprocessor.NewExiftoolReader()
		if err != nil {
			logging.LogWarning("exiftool disabled: %v", err)
		} else {
			defer et.Close()
			readers = append(readers, et)
		}
	}

	workers := conf.Scan.Workers
	if workers < 1 {
		workers = signalhandler.GetOptimalProcs()
	}

	extractor := scanner.NewExtractor(
		imageprocessor.NewImageLoaderRegistry(),
		&imageprocessor.LaplacianMeter{KernelSize: conf.Blur.KernelSize},
		conf.BlurNormalizer(),
		conf.Blur.Threshold,
		readers...,
	)

	return scanner.Scan(ctx, scanner.ScanOptions{
		FolderPath:  folder,
		Recursive:   recursive,
		Extensions:  imageprocessor.NewExtensionSet(conf.Scan.Extensions),
		MaxWorkers:  workers,
		FileTimeout: conf.FileTimeout(),
		Progress:    progress,
		Extractor:   extractor,
		Matcher:     matcher.New(conf.SimilarityNormalizer(), conf.Similarity.Threshold, workers),
	})
}

func argumentErrorReport(message string) types.Report {
	report := types.NewReport()
	report.ErrorFiles = append(report.ErrorFiles, types.ErrorRecord{
		ID:           "err_arg",
		Filename:     types.NotAvailable,
		Filepath:     types.NotAvailable,
		ErrorMessage: message,
		ErrorType:    types.ErrorTypeScan,
	})
	return report
}

func pathErrorReport(folder string) types.Report {
	report := types.NewReport()
	report.ErrorFiles = append(report.ErrorFiles, types.ErrorRecord{
		ID:           "err_path",
		Filename:     filepath.Base(folder),
		Filepath:     folder,
		ErrorMessage: "the given path is not a folder",
		ErrorType:    types.ErrorTypeScan,
	})
	return report
}

func main() {
	ctx, cancel := signalhandler.SetupHandler(context.Background())
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
