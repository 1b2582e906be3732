package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// VisionName identifies the Google Cloud Vision provider.
const VisionName = "vision"

type annotator interface {
	annotate(ctx context.Context, req *visionpb.AnnotateImageRequest) (*visionpb.AnnotateImageResponse, error)
	close() error
}

type imageAnnotator struct {
	client *vision.ImageAnnotatorClient
}

func (a imageAnnotator) annotate(ctx context.Context, req *visionpb.AnnotateImageRequest) (*visionpb.AnnotateImageResponse, error) {
	resp, err := a.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &visionpb.AnnotateImageResponse{}, nil
	}
	return resp.Responses[0], nil
}

func (a imageAnnotator) close() error { return a.client.Close() }

// Vision maps Cloud Vision label, object, face and landmark detection into a
// RawAnalysis.
type Vision struct {
	client     annotator
	maxResults int32
}

// NewVision dials Cloud Vision. An empty credentials file falls back to
// application default credentials.
func NewVision(ctx context.Context, credentialsFile string, maxResults int) (*Vision, error) {
	var opts []option.ClientOption
	if creds := strings.TrimSpace(credentialsFile); creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return newVisionWithAnnotator(imageAnnotator{client: client}, maxResults), nil
}

func newVisionWithAnnotator(a annotator, maxResults int) *Vision {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Vision{client: a, maxResults: int32(maxResults)}
}

func (v *Vision) Name() string  { return VisionName }
func (v *Vision) Model() string { return "cloud-vision-v1" }

// Close releases the gRPC connection.
func (v *Vision) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.close()
}

func (v *Vision) Analyze(ctx context.Context, img Image, _ Options) (RawAnalysis, error) {
	if len(img.Data) == 0 {
		return RawAnalysis{}, terminal(VisionName, errors.New("image data required"))
	}
	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img.Data},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: v.maxResults},
			{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: v.maxResults},
			{Type: visionpb.Feature_FACE_DETECTION, MaxResults: v.maxResults},
			{Type: visionpb.Feature_LANDMARK_DETECTION, MaxResults: 1},
		},
	}
	resp, err := v.client.annotate(ctx, req)
	if err != nil {
		return RawAnalysis{}, wrap(VisionName, err)
	}
	if resp.GetError() != nil && resp.GetError().GetMessage() != "" {
		return RawAnalysis{}, terminal(VisionName, fmt.Errorf("annotate: %s", resp.GetError().GetMessage()))
	}
	return mapVisionResponse(resp, img), nil
}

func mapVisionResponse(resp *visionpb.AnnotateImageResponse, img Image) RawAnalysis {
	out := RawAnalysis{Confidence: map[string]float64{}}

	var labelScore float64
	for _, label := range resp.GetLabelAnnotations() {
		name := strings.TrimSpace(label.GetDescription())
		if name == "" {
			continue
		}
		out.Tags = append(out.Tags, name)
		labelScore = math.Max(labelScore, float64(label.GetScore()))
	}
	if len(out.Tags) > 0 {
		out.Confidence["tags"] = roundScore(labelScore)
	}

	for _, obj := range resp.GetLocalizedObjectAnnotations() {
		detected := DetectedObject{
			Label:      strings.TrimSpace(obj.GetName()),
			Confidence: roundScore(float64(obj.GetScore())),
			Box:        normalizedBox(obj.GetBoundingPoly(), 1, 1),
		}
		if detected.Label != "" {
			out.Objects = append(out.Objects, detected)
		}
	}

	for _, face := range resp.GetFaceAnnotations() {
		box := normalizedBox(face.GetBoundingPoly(), img.Width, img.Height)
		if box == nil {
			continue
		}
		out.Faces = append(out.Faces, DetectedFace{
			Box:        *box,
			Confidence: roundScore(float64(face.GetDetectionConfidence())),
			Expression: faceExpression(face),
		})
	}

	if landmarks := resp.GetLandmarkAnnotations(); len(landmarks) > 0 {
		top := landmarks[0]
		out.PlaceName = strings.TrimSpace(top.GetDescription())
		out.Confidence["place_name"] = roundScore(float64(top.GetScore()))
		for _, loc := range top.GetLocations() {
			if ll := loc.GetLatLng(); ll != nil {
				lat, lon := ll.GetLatitude(), ll.GetLongitude()
				out.Latitude, out.Longitude = &lat, &lon
				break
			}
		}
	}

	if len(out.Tags) > 0 {
		out.ShortDescription = describeLabels(out.Tags, out.PlaceName)
	}
	if len(out.Confidence) == 0 {
		out.Confidence = nil
	}
	return out
}

// normalizedBox converts a bounding polygon to a box in [0,1]. Pixel vertices
// are divided by the image size; without a size they cannot be normalized.
func normalizedBox(poly *visionpb.BoundingPoly, width, height int) *Box {
	if poly == nil {
		return nil
	}
	var xs, ys []float64
	if nv := poly.GetNormalizedVertices(); len(nv) > 0 {
		for _, v := range nv {
			xs = append(xs, float64(v.GetX()))
			ys = append(ys, float64(v.GetY()))
		}
	} else if width > 0 && height > 0 {
		for _, v := range poly.GetVertices() {
			xs = append(xs, float64(v.GetX())/float64(width))
			ys = append(ys, float64(v.GetY())/float64(height))
		}
	}
	if len(xs) == 0 {
		return nil
	}
	minX, maxX := bounds(xs)
	minY, maxY := bounds(ys)
	return &Box{X: clamp01(minX), Y: clamp01(minY), W: clamp01(maxX - minX), H: clamp01(maxY - minY)}
}

func bounds(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func roundScore(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func faceExpression(face *visionpb.FaceAnnotation) string {
	likely := func(l visionpb.Likelihood) bool {
		return l == visionpb.Likelihood_LIKELY || l == visionpb.Likelihood_VERY_LIKELY
	}
	switch {
	case likely(face.GetJoyLikelihood()):
		return "joy"
	case likely(face.GetSorrowLikelihood()):
		return "sorrow"
	case likely(face.GetAngerLikelihood()):
		return "anger"
	case likely(face.GetSurpriseLikelihood()):
		return "surprise"
	}
	return ""
}

func describeLabels(tags []string, place string) string {
	n := len(tags)
	if n > 3 {
		n = 3
	}
	desc := "Photo of " + strings.ToLower(strings.Join(tags[:n], ", "))
	if place != "" {
		desc += " at " + place
	}
	return desc
}
