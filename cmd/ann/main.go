// Package main provides the ann CLI: it trains and evaluates a small
// convolutional MNIST classifier built from the ann kernels.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/born-ml/ann/internal/ann"
	"github.com/born-ml/ann/internal/checkpoint"
	"github.com/born-ml/ann/internal/mnist"
	"github.com/born-ml/ann/internal/parallel"
)

const version = "v0.1.0"

func usage() {
	fmt.Println("ann - convolutional network kernels")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  train      Train a classifier on MNIST (or -synthetic data)")
	fmt.Println("  eval       Evaluate a saved checkpoint")
	fmt.Println("  pgm        Export an image or a pooled feature map as PGM")
	fmt.Println("  inspect    Print the tensors and metadata of a checkpoint")
	fmt.Println("  version    Show version")
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("ann: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(args)
	case "eval":
		err = runEval(args)
	case "pgm":
		err = runPGM(args)
	case "inspect":
		err = runInspect(args)
	case "version":
		fmt.Printf("ann %s\n", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// dataFlags are shared by every command that reads samples.
type dataFlags struct {
	dir       string
	test      bool
	samples   int
	synthetic bool
	seed      int64
}

func (d *dataFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.dir, "data", "./data", "Directory containing MNIST IDX files")
	fs.BoolVar(&d.test, "test", false, "Use the t10k test set instead of the training set")
	fs.IntVar(&d.samples, "samples", 0, "Max samples to load (0 = all)")
	fs.BoolVar(&d.synthetic, "synthetic", false, "Use synthetic data (for testing without MNIST files)")
	fs.Int64Var(&d.seed, "seed", 1, "Random seed for weights, shuffling and synthetic data")
}

func (d *dataFlags) load() (*dataset, error) {
	if d.synthetic {
		n := d.samples
		if n == 0 {
			n = 200
		}
		return syntheticMNIST(n, d.seed), nil
	}
	data, err := loadMNIST(d.dir, !d.test, d.samples)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w\nDownload the MNIST IDX files into %s or run with -synthetic", err, d.dir)
	}
	return data, err
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var data dataFlags
	data.register(fs)
	model := defaultModelConfig()
	fs.IntVar(&model.FilterSize, "filter", model.FilterSize, "Convolution kernel size")
	fs.IntVar(&model.Channels, "channels", model.Channels, "Number of convolution channels")
	fs.IntVar(&model.Pooling, "pool", model.Pooling, "Max-pooling window")
	epochs := fs.Int("epochs", 3, "Number of training epochs")
	batchSize := fs.Int("batch", 32, "Batch size for training")
	lr := fs.Float64("lr", 0.1, "Learning rate")
	validation := fs.Float64("val", 0.1, "Fraction of samples held out for validation")
	workers := fs.Int("workers", 0, "Worker goroutines (0 = one per CPU)")
	load := fs.String("load", "", "Resume from this checkpoint")
	save := fs.String("save", "", "Write the trained checkpoint here")
	_ = fs.Parse(args)

	all, err := data.load()
	if err != nil {
		return err
	}
	trainData, valData, err := splitValidation(all, *validation)
	if err != nil {
		return err
	}
	fmt.Printf("Train: %d samples, Val: %d samples\n", trainData.Len(), valData.Len())

	var net *network
	if *load != "" {
		if net, _, err = loadNetwork(*load); err != nil {
			return err
		}
		log.Printf("resumed from %s", *load)
	} else {
		if net, err = newNetwork(model, all.Rows, all.Cols); err != nil {
			return err
		}
		net.randomize(ann.NewRand(data.seed))
	}

	g := net.conv.Args()
	fmt.Printf("Conv: %d channels, %dx%d kernel, %dx%d pooling -> %d features\n",
		g.Channels, g.Size, g.Size, g.Pooling, g.Pooling, g.OutputSize)

	cfg := trainConfig{
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		LearningRate: float32(*lr),
		Seed:         data.seed,
		Parallel:     parallelConfig(*workers),
	}
	err = train(net, trainData, valData, cfg, func(epoch int, tr, val metrics) {
		fmt.Printf("Epoch %2d/%d: Loss=%.4f, Train Acc=%.2f%%, Val Loss=%.4f, Val Acc=%.2f%%\n",
			epoch, cfg.Epochs, tr.Loss, tr.Accuracy*100, val.Loss, val.Accuracy*100)
	})
	if err != nil {
		return err
	}

	if *save != "" {
		meta := map[string]string{"epochs": strconv.Itoa(cfg.Epochs), "version": version}
		if err := net.save(*save, meta); err != nil {
			return err
		}
		log.Printf("saved %s", *save)
	}
	return nil
}

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	var data dataFlags
	data.register(fs)
	load := fs.String("load", "", "Checkpoint to evaluate (required)")
	workers := fs.Int("workers", 0, "Worker goroutines (0 = one per CPU)")
	show := fs.Int("show", 0, "Print predictions for the first N samples")
	_ = fs.Parse(args)

	if *load == "" {
		return errors.New("eval: -load is required")
	}
	net, _, err := loadNetwork(*load)
	if err != nil {
		return err
	}
	samples, err := data.load()
	if err != nil {
		return err
	}

	ws := net.newWorkspace()
	for i := range min(*show, samples.Len()) {
		if err := net.forward(ws, samples.Images[i]); err != nil {
			return err
		}
		k, confidence := ws.probs.Max()
		fmt.Printf("#%d: label %d, predicted %d (%.1f%%)\n", i, samples.Labels[i], k, confidence*100)
	}

	m, err := evaluate(net, samples, parallelConfig(*workers))
	if err != nil {
		return err
	}
	fmt.Printf("Loss: %.4f\nAccuracy: %.2f%%\n", m.Loss, m.Accuracy*100)
	return nil
}

func runPGM(args []string) error {
	fs := flag.NewFlagSet("pgm", flag.ExitOnError)
	var data dataFlags
	data.register(fs)
	index := fs.Int("index", 0, "Sample index (0-based)")
	out := fs.String("out", "sample.pgm", "Output file")
	load := fs.String("load", "", "Checkpoint; with -channel, export that pooled feature map instead of the image")
	channel := fs.Int("channel", -1, "Pooled feature map channel to export (requires -load)")
	_ = fs.Parse(args)

	samples, err := data.load()
	if err != nil {
		return err
	}
	if *index < 0 || *index >= samples.Len() {
		return fmt.Errorf("pgm: index %d: %w", *index, mnist.ErrOutOfRange)
	}
	image, rows, cols := samples.Images[*index], samples.Rows, samples.Cols

	if *channel >= 0 {
		if *load == "" {
			return errors.New("pgm: -channel requires -load")
		}
		net, _, err := loadNetwork(*load)
		if err != nil {
			return err
		}
		if image, rows, cols, err = featureMap(net, image, *channel); err != nil {
			return err
		}
	}

	pgm, err := mnist.ToPGM(image, rows, cols)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, pgm, 0o600); err != nil {
		return err
	}
	log.Printf("wrote %s (%dx%d, label %d)", *out, cols, rows, samples.Labels[*index])
	return nil
}

// featureMap returns the pooled activation plane of channel c for image.
func featureMap(net *network, image []byte, c int) ([]byte, int, int, error) {
	g := net.conv.Args()
	if c >= g.Channels {
		return nil, 0, 0, fmt.Errorf("channel %d outside [0, %d): %w", c, g.Channels, ann.ErrIndex)
	}
	ws := net.newWorkspace()
	if err := net.forward(ws, image); err != nil {
		return nil, 0, 0, err
	}
	plane := g.PooledW * g.PooledH
	pixels := ws.pooled.ToImageBytes()
	return pixels[c*plane : (c+1)*plane], g.PooledH, g.PooledW, nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dump := fs.Bool("dump", false, "Also print the convolution kernels, dense weights and dense biases")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("inspect: expected one checkpoint path")
	}
	path := fs.Arg(0)

	r, err := checkpoint.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	fmt.Printf("%s\n", filepath.Base(path))
	if err := r.Verify(); err != nil {
		fmt.Printf("  checksum: %v\n", err)
	} else {
		fmt.Println("  checksum: ok")
	}
	meta := r.Metadata()
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		fmt.Printf("  %s = %s\n", k, meta[k])
	}
	for _, name := range r.Names() {
		shape, err := r.Shape(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-14s %v\n", name, shape)
	}

	if *dump {
		net, _, err := loadNetwork(path)
		if err != nil {
			return err
		}
		fmt.Print(net.conv.Dump())
		fmt.Print(net.dense.Dump())
		fmt.Print(net.bias.Dump())
	}
	return nil
}

func parallelConfig(workers int) parallel.Config {
	cfg := parallel.DefaultConfig()
	if workers > 0 {
		cfg.NumWorkers = workers
		cfg.Enabled = workers > 1
	}
	return cfg
}
