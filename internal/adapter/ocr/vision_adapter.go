package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	// screenshot formats accepted for donation images
	_ "image/jpeg"
	_ "image/png"

	"github.com/ptdat/guild-bank/internal/core/domain"
	"github.com/ptdat/guild-bank/internal/pkg/logger"
)

const annotateTimeout = 60 * time.Second

// VisionExtractor implements port.Extractor on Cloud Vision text
// detection. It is a pure sensor: one span per detected word, carrying the
// word's bounding box and the mean color sampled from the submitted image
// inside that box. All interpretation happens downstream.
type VisionExtractor struct {
	client *vision.ImageAnnotatorClient
	log    *logger.Logger
}

func NewVisionExtractor(ctx context.Context, log *logger.Logger) (*VisionExtractor, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, clientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionExtractor{client: client, log: log.With("component", "ocr")}, nil
}

func (v *VisionExtractor) Close() error {
	return v.client.Close()
}

func (v *VisionExtractor) Extract(ctx context.Context, imageBytes []byte) ([]domain.Span, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	decoded, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, annotateTimeout)
	defer cancel()

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: imageBytes},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, fmt.Errorf("vision returned no response")
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}

	// TextAnnotations[0] is the whole-image text; the rest are words.
	if len(r0.TextAnnotations) < 2 {
		return nil, nil
	}

	bounds := decoded.Bounds()
	spans := make([]domain.Span, 0, len(r0.TextAnnotations)-1)
	for _, ann := range r0.TextAnnotations[1:] {
		if ann == nil || strings.TrimSpace(ann.Description) == "" {
			continue
		}
		box := boxFromPoly(ann.BoundingPoly, bounds)
		spans = append(spans, domain.Span{
			Text:      ann.Description,
			Box:       box,
			MeanColor: sampleMeanColor(decoded, box),
		})
	}

	v.log.Debug("image extracted", "spans", len(spans))
	return spans, nil
}

func boxFromPoly(poly *visionpb.BoundingPoly, bounds image.Rectangle) domain.Box {
	if poly == nil || len(poly.Vertices) == 0 {
		return domain.Box{Width: bounds.Dx(), Height: bounds.Dy()}
	}
	minX, minY := int(poly.Vertices[0].X), int(poly.Vertices[0].Y)
	maxX, maxY := minX, minY
	for _, vert := range poly.Vertices[1:] {
		x, y := int(vert.X), int(vert.Y)
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	return domain.Box{Left: minX, Top: minY, Width: maxX - minX, Height: maxY - minY}
}

// sampleMeanColor averages the pixels inside the box, clamped to the image.
func sampleMeanColor(img image.Image, box domain.Box) domain.Color {
	bounds := img.Bounds()
	x0 := maxInt(box.Left, bounds.Min.X)
	y0 := maxInt(box.Top, bounds.Min.Y)
	x1 := minInt(box.Left+box.Width, bounds.Max.X)
	y1 := minInt(box.Top+box.Height, bounds.Max.Y)
	if x1 <= x0 || y1 <= y0 {
		return domain.Color{}
	}

	var r, g, b, n uint64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += uint64(pr >> 8)
			g += uint64(pg >> 8)
			b += uint64(pb >> 8)
			n++
		}
	}
	return domain.Color{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n)}
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
