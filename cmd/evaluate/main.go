package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/alaska2/internal/classes"
	"github.com/Brownie44l1/alaska2/internal/config"
	"github.com/Brownie44l1/alaska2/internal/dataloader"
	"github.com/Brownie44l1/alaska2/internal/dataset"
	"github.com/Brownie44l1/alaska2/internal/inference"
	"github.com/Brownie44l1/alaska2/internal/listing"
	"github.com/Brownie44l1/alaska2/internal/logger"
	"github.com/Brownie44l1/alaska2/internal/metrics"
	"github.com/Brownie44l1/alaska2/internal/model"
	"github.com/Brownie44l1/alaska2/internal/submission"
	"github.com/Brownie44l1/alaska2/internal/transform"
)

// targetRecorder passes batches through and remembers their targets in the
// order the aggregator consumes them.
type targetRecorder struct {
	src     *dataloader.Loader
	targets []int
}

func (r *targetRecorder) Next(ctx context.Context) (dataloader.Batch, error) {
	batch, err := r.src.Next(ctx)
	if err != nil {
		return batch, err
	}
	if len(batch.Targets) != batch.Size {
		return batch, errors.New("evaluation needs labeled batches")
	}
	r.targets = append(r.targets, batch.Targets...)
	return batch, nil
}

func (r *targetRecorder) Progress() (current, total int) {
	return r.src.Progress()
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	output := flag.String("output", "", "optional path for the scored table")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info", "").WithError(err).Fatal("Failed to load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Path)
	if cfg.Data.Listing == "" {
		log.Fatal("data.listing is required for evaluation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *output, log); err != nil {
		log.WithError(err).Fatal("Evaluation failed")
	}
}

func run(ctx context.Context, cfg *config.Config, output string, log logrus.FieldLogger) error {
	session, err := model.NewSession(model.Options{
		ModelPath:    cfg.Model.Path,
		MetadataPath: cfg.Model.MetadataPath,
		LibraryPath:  cfg.Model.LibraryPath,
		Device:       cfg.Model.Device,
		DeviceID:     cfg.Model.DeviceID,
	})
	if err != nil {
		return err
	}
	defer session.Close()
	if err := session.Metadata.CheckImageSize(cfg.Data.ImageSize); err != nil {
		return err
	}

	set, err := classes.New(session.Metadata.Classes)
	if err != nil {
		return err
	}
	samples, err := listing.ReadFile(cfg.Data.Listing, set)
	if err != nil {
		return err
	}

	pipeline := transform.InferPipeline(session.Metadata.ImageSize)
	if cfg.Data.Augment {
		pipeline = transform.TrainPipeline(session.Metadata.ImageSize, cfg.Data.FlipProb, cfg.Seed)
	}
	ds, err := dataset.New(samples, set, pipeline, dataset.Training)
	if err != nil {
		return err
	}
	src := &targetRecorder{src: dataloader.New(ds, dataloader.Options{
		BatchSize: min(cfg.Loader.BatchSize, session.Metadata.BatchSize()),
		Workers:   cfg.Loader.Workers,
		Shuffle:   cfg.Loader.Shuffle,
		Seed:      cfg.Seed,
	})}

	log.WithFields(logrus.Fields{
		"images":       ds.Len(),
		"mode":         ds.Mode().String(),
		"augment":      cfg.Data.Augment,
		"distribution": listing.Distribution(samples, set),
	}).Info("Starting evaluation")

	table, err := inference.NewAggregator(ds.Classes().Names(), inference.Multiclass, log).Run(ctx, src, session)
	if err != nil {
		return err
	}
	report, err := metrics.Evaluate(table, src.targets)
	if err != nil {
		return err
	}

	if output != "" {
		if err := submission.WriteFile(output, table); err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{
		"samples":      report.Samples,
		"accuracy":     report.Accuracy,
		"auc":          report.AUC,
		"weighted_auc": report.WeightedAUC,
	}).Info("Evaluation finished")
	for name, stats := range report.PerClass {
		log.WithFields(logrus.Fields{
			"class":   name,
			"correct": stats.Correct,
			"total":   stats.Total,
		}).Info("Class accuracy")
	}
	return nil
}
