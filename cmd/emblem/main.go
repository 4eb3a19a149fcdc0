// Command emblem detects university emblems from a camera, a video, an image
// or the images of a web page and prints information about each university.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/joho/godotenv"

	"emblem_backend/internal/feature/emblem/adapters/capture"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
	jwtmw "emblem_backend/internal/platform/jwt"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] failed to load .env: %v", err)
	}

	parser := argparse.NewParser("emblem", "Detect university emblems and look up the universities")

	cameraCmd := parser.NewCommand("camera", "Detect from a live camera and stop after the first result")
	device := cameraCmd.Int("d", "device", &argparse.Options{Help: "Camera device index", Default: 0})
	noWindow := cameraCmd.Flag("", "no-window", &argparse.Options{Help: "Do not open the preview window", Default: false})

	videoCmd := parser.NewCommand("video", "Collect the universities seen in a video file")
	videoInput := videoCmd.String("i", "input", &argparse.Options{Help: "Input video file", Required: true})
	videoNoWindow := videoCmd.Flag("", "no-window", &argparse.Options{Help: "Do not open the preview window", Default: false})

	imageCmd := parser.NewCommand("image", "Detect emblems in a single image")
	imageInput := imageCmd.String("i", "input", &argparse.Options{Help: "Input image file", Required: true})
	imageOutput := imageCmd.String("o", "output", &argparse.Options{Help: "Write the annotated image to this file", Default: ""})
	cropsDir := imageCmd.String("", "crops", &argparse.Options{Help: "Write each detected emblem to DIR/image_logo_{i}.jpg", Default: ""})

	urlCmd := parser.NewCommand("url", "Detect emblems in every <img> of a web page")
	pageURL := urlCmd.String("u", "url", &argparse.Options{Help: "Page URL", Required: true})

	tokenCmd := parser.NewCommand("token", "Issue an API token for the HTTP server")
	subject := tokenCmd.String("s", "subject", &argparse.Options{Help: "Token subject (client name)", Required: true})
	ttl := tokenCmd.String("", "ttl", &argparse.Options{Help: "Token lifetime", Default: "24h"})

	purgeCmd := parser.NewCommand("purge-cache", "Delete cached university information from Redis")

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case cameraCmd.Happened():
		err = runCamera(ctx, *device, !*noWindow)
	case videoCmd.Happened():
		err = runVideo(ctx, *videoInput, !*videoNoWindow)
	case imageCmd.Happened():
		err = runImage(ctx, *imageInput, *imageOutput, *cropsDir)
	case urlCmd.Happened():
		err = runURL(ctx, *pageURL)
	case tokenCmd.Happened():
		err = runToken(*subject, *ttl)
	case purgeCmd.Happened():
		err = runPurge(ctx)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func runCamera(ctx context.Context, device int, window bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := capture.OpenCamera(device)
	if err != nil {
		return err
	}
	out := newConsoleSink(os.Stdout, nil)
	if window {
		out.window = capture.NewWindow("emblem camera", 0)
	}
	defer out.Close()

	_, err = a.pipeline(false).Run(ctx, src, usecase.DefaultRunOptions(entity.ModalityCamera), out)
	return err
}

func runVideo(ctx context.Context, path string, window bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := capture.OpenVideo(path)
	if err != nil {
		return err
	}
	out := newConsoleSink(os.Stdout, nil)
	if window {
		out.window = capture.NewWindow("emblem video", capture.DisplayWidth)
	}
	defer out.Close()

	report, err := a.pipeline(false).Run(ctx, src, usecase.DefaultRunOptions(entity.ModalityVideo), out)
	if err != nil {
		return err
	}
	printSeen(os.Stdout, report.Seen)
	return nil
}

func runImage(ctx context.Context, input, output, cropsDir string) error {
	img, err := loadImage(input)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, frame, err := a.pipeline(false).DetectImage(ctx, img, input, newConsoleSink(os.Stdout, nil))
	if err != nil {
		return err
	}

	if output != "" {
		if err := saveImage(output, frame.Image); err != nil {
			return err
		}
		slog.Info("annotated image written", "path", output)
	}
	if cropsDir != "" {
		paths, err := saveCrops(cropsDir, img, frame.Detections)
		if err != nil {
			return err
		}
		slog.Info("emblem crops written", "dir", cropsDir, "count", len(paths))
	}
	return nil
}

func runURL(ctx context.Context, pageURL string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.pipeline(false).ScrapePage(ctx, a.fetcher, pageURL, newConsoleSink(os.Stdout, nil))
	return err
}

func runToken(subject, ttl string) error {
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return fmt.Errorf("invalid --ttl: %w", err)
	}
	token, err := jwtmw.NewGenerator(os.Getenv(jwtmw.EnvKeyJWTSecret), d).GenerateToken(subject)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runPurge(ctx context.Context) error {
	svc, closeFn, err := newCache(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := svc.Purge(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d cached answers\n", n)
	return nil
}
