package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/alaska2/internal/classes"
	"github.com/Brownie44l1/alaska2/internal/config"
	"github.com/Brownie44l1/alaska2/internal/dataloader"
	"github.com/Brownie44l1/alaska2/internal/dataset"
	"github.com/Brownie44l1/alaska2/internal/inference"
	"github.com/Brownie44l1/alaska2/internal/listing"
	"github.com/Brownie44l1/alaska2/internal/logger"
	"github.com/Brownie44l1/alaska2/internal/model"
	"github.com/Brownie44l1/alaska2/internal/submission"
	"github.com/Brownie44l1/alaska2/internal/transform"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info", "").WithError(err).Fatal("Failed to load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Path).WithField("run_id", uuid.New().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("Inference failed")
	}
}

func run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	mode, err := inference.ParseLabelMode(cfg.Output.LabelMode)
	if err != nil {
		return err
	}

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

	var samples []listing.Sample
	if cfg.Data.Listing != "" {
		samples, err = listing.ReadFile(cfg.Data.Listing, set)
	} else {
		samples, err = listing.ScanUnlabeled(cfg.Data.TestDir)
	}
	if err != nil {
		return err
	}

	ds, err := dataset.New(samples, set, transform.InferPipeline(session.Metadata.ImageSize), dataset.Inference)
	if err != nil {
		return err
	}
	loader := dataloader.New(ds, dataloader.Options{
		BatchSize: min(cfg.Loader.BatchSize, session.Metadata.BatchSize()),
		Workers:   cfg.Loader.Workers,
	})

	log.WithFields(logrus.Fields{
		"images":  ds.Len(),
		"dataset": ds.Mode().String(),
		"batches": loader.Len(),
		"mode":    mode,
		"device":  cfg.Model.Device,
	}).Info("Starting inference")

	start := time.Now()
	table, err := inference.NewAggregator(ds.Classes().Names(), mode, log).Run(ctx, loader, session)
	if err != nil {
		return err
	}
	if err := submission.WriteFile(cfg.Output.Path, table); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"rows":     table.Len(),
		"output":   cfg.Output.Path,
		"duration": time.Since(start).String(),
	}).Info("Submission written")
	return nil
}
