package main

import (
	"flag"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/alaska2/internal/classes"
	"github.com/Brownie44l1/alaska2/internal/config"
	"github.com/Brownie44l1/alaska2/internal/listing"
	"github.com/Brownie44l1/alaska2/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	root := flag.String("root", "", "ALASKA2 root directory (defaults to data.root)")
	trainRatio := flag.Float64("split", 0, "fraction of samples for the train listing; 0 writes a single listing")
	out := flag.String("out", "listing.csv", "listing path, or train listing when splitting")
	validOut := flag.String("valid-out", "valid.csv", "validation listing path when splitting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info", "").WithError(err).Fatal("Failed to load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Path)
	if *root == "" {
		*root = cfg.Data.Root
	}
	// Listings resolve relative paths against their own directory.
	if abs, err := filepath.Abs(*root); err == nil {
		*root = abs
	}

	set := classes.Default()
	samples, err := listing.Scan(*root, set)
	if err != nil {
		log.WithError(err).Fatal("Failed to scan dataset")
	}
	log.WithFields(logrus.Fields{
		"root":         *root,
		"samples":      len(samples),
		"distribution": listing.Distribution(samples, set),
	}).Info("Dataset scanned")

	if *trainRatio <= 0 || *trainRatio >= 1 {
		if err := listing.WriteFile(*out, samples, set); err != nil {
			log.WithError(err).Fatal("Failed to write listing")
		}
		log.WithField("path", *out).Info("Listing written")
		return
	}

	train, valid := listing.Split(samples, *trainRatio, cfg.Seed)
	if err := listing.WriteFile(*out, train, set); err != nil {
		log.WithError(err).Fatal("Failed to write train listing")
	}
	if err := listing.WriteFile(*validOut, valid, set); err != nil {
		log.WithError(err).Fatal("Failed to write validation listing")
	}
	log.WithFields(logrus.Fields{
		"train":      len(train),
		"valid":      len(valid),
		"train_path": *out,
		"valid_path": *validOut,
	}).Info("Listings written")
}
