package awsadapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"kycflow/internal/kyc/models"
	"kycflow/pkg/platform/sentinel"
)

// TextractAPI is the subset of *textract.Client used here.
type TextractAPI interface {
	AnalyzeID(ctx context.Context, params *textract.AnalyzeIDInput, optFns ...func(*textract.Options)) (*textract.AnalyzeIDOutput, error)
}

// TextExtractor reads identity document fields with Textract AnalyzeID.
type TextExtractor struct {
	client TextractAPI
}

func NewTextExtractor(client TextractAPI) *TextExtractor {
	return &TextExtractor{client: client}
}

// ExtractText returns the fields of the first identity document found.
// Field names are returned raw; callers canonicalize them.
func (t *TextExtractor) ExtractText(ctx context.Context, doc models.ObjectRef) (map[string]string, error) {
	out, err := t.client.AnalyzeID(ctx, &textract.AnalyzeIDInput{
		DocumentPages: []types.Document{{
			S3Object: &types.S3Object{Bucket: aws.String(doc.Bucket), Name: aws.String(doc.Key)},
		}},
	})
	if err != nil {
		var invalid *types.InvalidS3ObjectException
		if errors.As(err, &invalid) {
			return nil, fmt.Errorf("textract analyze id: %w: %w", sentinel.ErrObjectMissing, err)
		}
		return nil, fmt.Errorf("textract analyze id: %w", err)
	}
	fields := make(map[string]string)
	if len(out.IdentityDocuments) == 0 {
		return fields, nil
	}
	for _, f := range out.IdentityDocuments[0].IdentityDocumentFields {
		if f.Type == nil || f.ValueDetection == nil {
			continue
		}
		name := aws.ToString(f.Type.Text)
		if name == "" {
			continue
		}
		fields[name] = aws.ToString(f.ValueDetection.Text)
	}
	return fields, nil
}
