package main

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/textract"

	"kycflow/internal/kyc/adapters/awsadapters"
	"kycflow/internal/kyc/adapters/guarded"
	"kycflow/internal/kyc/adapters/stub"
	"kycflow/internal/kyc/ports"
	"kycflow/internal/platform/aws"
	"kycflow/internal/platform/config"
	"kycflow/pkg/platform/circuit"
)

// stubSimilarity is what the local face comparer reports; it clears the
// default threshold.
const stubSimilarity = 99.5

const localObjectBaseURL = "local:/"

type collaborators struct {
	text     ports.TextExtractor
	faces    ports.FaceDetector
	comparer ports.FaceComparer
	objects  ports.ObjectStore // nil without an object store

	// fallbackNotifier is used when no broker is configured.
	fallbackNotifier ports.Notifier
}

func buildCollaborators(ctx context.Context, cfg config.Config, log *slog.Logger) (*collaborators, error) {
	c := &collaborators{fallbackNotifier: stub.NewLogNotifier(log)}

	if !cfg.AWS.Enabled() {
		log.Warn("AWS not configured; using stub OCR and face collaborators")
		faces := stub.NewFaces(stubSimilarity)
		c.text = stub.NewTextExtractor()
		c.faces = faces
		c.comparer = faces
		c.objects = &stub.ObjectStore{BaseURL: localObjectBaseURL}
		return c, nil
	}

	awsCfg, err := aws.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	endpoint := aws.Endpoint(cfg.AWS)
	faces := awsadapters.NewFaces(rekognition.NewFromConfig(awsCfg, func(o *rekognition.Options) {
		o.BaseEndpoint = endpoint
	}))
	text := awsadapters.NewTextExtractor(textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		o.BaseEndpoint = endpoint
	}))

	c.text = guarded.NewTextExtractor(text, circuit.New("ocr"), log)
	c.faces = guarded.NewFaceDetector(faces, circuit.New("face_detect"), log)
	c.comparer = guarded.NewFaceComparer(faces, circuit.New("face_compare"), log)
	c.objects = awsadapters.NewObjectStore(awsadapters.NewS3Client(awsCfg, endpoint))
	return c, nil
}
