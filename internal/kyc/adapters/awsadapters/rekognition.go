package awsadapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
	"kycflow/pkg/platform/sentinel"
)

// RekognitionAPI is the subset of *rekognition.Client used here.
type RekognitionAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
	CompareFaces(ctx context.Context, params *rekognition.CompareFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error)
}

// Faces detects and compares faces with Rekognition.
type Faces struct {
	client RekognitionAPI
}

func NewFaces(client RekognitionAPI) *Faces {
	return &Faces{client: client}
}

// rekognitionError marks unreadable S3 objects with sentinel.ErrObjectMissing
// so callers can tell a missing upload from an unhealthy upstream.
func rekognitionError(op string, err error) error {
	var invalid *types.InvalidS3ObjectException
	if errors.As(err, &invalid) {
		return fmt.Errorf("rekognition %s: %w: %w", op, sentinel.ErrObjectMissing, err)
	}
	return fmt.Errorf("rekognition %s: %w", op, err)
}

func s3Image(ref models.ObjectRef) *types.Image {
	return &types.Image{S3Object: &types.S3Object{Bucket: aws.String(ref.Bucket), Name: aws.String(ref.Key)}}
}

// DetectFaces returns every face with its confidence; filtering is left to
// the caller.
func (f *Faces) DetectFaces(ctx context.Context, doc models.ObjectRef) ([]ports.DetectedFace, error) {
	out, err := f.client.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      s3Image(doc),
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, rekognitionError("detect faces", err)
	}
	faces := make([]ports.DetectedFace, 0, len(out.FaceDetails))
	for _, d := range out.FaceDetails {
		if d.BoundingBox == nil {
			continue
		}
		faces = append(faces, ports.DetectedFace{
			Box: models.BoundingBox{
				Width:  float64(aws.ToFloat32(d.BoundingBox.Width)),
				Height: float64(aws.ToFloat32(d.BoundingBox.Height)),
				Left:   float64(aws.ToFloat32(d.BoundingBox.Left)),
				Top:    float64(aws.ToFloat32(d.BoundingBox.Top)),
			},
			Confidence: float64(aws.ToFloat32(d.Confidence)),
		})
	}
	return faces, nil
}

// CompareFaces returns the highest similarity among matches, or 0 when
// nothing matched.
func (f *Faces) CompareFaces(ctx context.Context, source, target models.ObjectRef) (float64, error) {
	out, err := f.client.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage:         s3Image(source),
		TargetImage:         s3Image(target),
		SimilarityThreshold: aws.Float32(0),
	})
	if err != nil {
		return 0, rekognitionError("compare faces", err)
	}
	best := 0.0
	for _, m := range out.FaceMatches {
		if s := float64(aws.ToFloat32(m.Similarity)); s > best {
			best = s
		}
	}
	return best, nil
}
