package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pifs/internal/atomicfile"
	"pifs/pkg/config"
	"pifs/pkg/fractal"
	"pifs/pkg/quality"
	"pifs/pkg/raster"
	"pifs/pkg/visualization"
)

const usage = `Usage:
  pifs [glog flags] encode [-config f] [-small n] [-large n] [-cores n] [-scale n] [-zstd] [-debug dir] in.png out.pifs
  pifs [glog flags] decode [-config f] [-iterations n] [-quality q] [-compare orig.png] in.pifs out.png
  pifs init-config path.yaml
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	defer glog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "encode":
		err = runEncode(args[1:])
	case "decode":
		err = runDecode(args[1:])
	case "init-config":
		err = runInitConfig(args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		glog.Flush()
		fmt.Fprintf(os.Stderr, "pifs %s: %v\n", args[0], err)
		os.Exit(1)
	}
}

// loadConfig reads the YAML configuration and routes glog to stderr when the
// configuration asks for verbose output.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if cfg.Output.Verbose {
		if err := flag.Set("alsologtostderr", "true"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	configPath := fs.String("config", "pifs.yaml", "Configuration file (defaults are used when it does not exist)")
	small := fs.Int("small", 0, "Target block side in pixels")
	large := fs.Int("large", 0, "Candidate block side in pixels")
	cores := fs.Int("cores", 0, "Number of CPU cores to use")
	scale := fs.Int("scale", 0, "Shrink the input by this integer factor before encoding")
	compress := fs.Bool("zstd", false, "Compress the container body with zstd")
	debugDir := fs.String("debug", "", "Directory receiving the partition grid images")
	fs.Parse(args)

	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("expected input image and output file, got %d arguments", fs.NArg())
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "small":
			cfg.Encoding.SmallBlock = *small
		case "large":
			cfg.Encoding.LargeBlock = *large
		case "cores":
			cfg.Encoding.NumCores = *cores
		case "scale":
			cfg.Encoding.InputScale = *scale
		case "zstd":
			cfg.Output.Compress = *compress
		case "debug":
			cfg.Output.DebugDir = *debugDir
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	img, err := loadImage(inPath)
	if err != nil {
		return err
	}
	img = raster.Prescale(img, cfg.Encoding.InputScale)
	isColor, hasAlpha := raster.Inspect(img)

	encoder, err := fractal.NewEncoder(cfg.EncoderOptions())
	if err != nil {
		return err
	}

	start := time.Now()
	im, err := encoder.Encode(img, isColor, hasAlpha)
	if err != nil {
		return err
	}
	glog.Infof("Encoded %s in %.2fs", inPath, time.Since(start).Seconds())

	if err := fractal.WriteFile(outPath, im, cfg.Output.Compress); err != nil {
		return err
	}
	glog.Infof("Fractal image saved to %s", outPath)

	if cfg.Output.DebugDir != "" {
		paths, err := visualization.NewViewer(im).SaveGridSequence(cfg.Output.DebugDir)
		if err != nil {
			glog.Warningf("Failed to save partition grids: %v", err)
		} else {
			glog.Infof("Saved %d partition grids to %s", len(paths), cfg.Output.DebugDir)
		}
	}
	return nil
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	configPath := fs.String("config", "pifs.yaml", "Configuration file (defaults are used when it does not exist)")
	iterations := fs.Int("iterations", 0, "Number of fixed-point iterations")
	q := fs.Int("quality", 0, "Supersampling factor; 1 disables refinement")
	comparePath := fs.String("compare", "", "Original image to measure the reconstruction against")
	fs.Parse(args)

	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("expected fractal file and output image, got %d arguments", fs.NArg())
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "iterations":
			cfg.Decoding.Iterations = *iterations
		case "quality":
			cfg.Decoding.Quality = *q
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	im, err := fractal.ReadFile(inPath)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := im.Decode(cfg.DecodeOptions())
	if err != nil {
		return err
	}
	glog.Infof("Decoded %s in %.2fs", inPath, time.Since(start).Seconds())

	if err := atomicfile.Write(outPath, func(w io.Writer) error {
		return png.Encode(w, out)
	}, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	glog.Infof("Decoded image saved to %s", outPath)

	if *comparePath != "" {
		original, err := loadImage(*comparePath)
		if err != nil {
			return err
		}
		m, err := quality.Compare(original, out)
		if err != nil {
			return err
		}
		fmt.Printf("RMSE: %.3f\n", m.RMSE)
		fmt.Printf("PSNR: %.2f dB\n", m.PSNR)
		fmt.Printf("SSIM: %.4f\n", m.SSIM)
		fmt.Printf("Entropy difference: %.4f bits\n", m.EntropyDiff)
	}
	return nil
}

func runInitConfig(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected the configuration path")
	}
	if err := config.CreateDefaultConfigFile(args[0]); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", args[0])
	return nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
