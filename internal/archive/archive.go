// Package archive keeps a copy of every submitted report in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"injury-report/internal/auth"
	"injury-report/internal/draft"
	"injury-report/internal/injury"
)

// Uploader is the part of the S3 client the archive uses.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	}), nil
}

type Archive struct {
	client   Uploader
	bucket   string
	renderer draft.Renderer
	logger   *zap.Logger
}

func New(client Uploader, bucket string, renderer draft.Renderer, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{client: client, bucket: bucket, renderer: renderer, logger: logger}
}

func (a *Archive) Name() string { return "archive" }

type document struct {
	ItemID      string                `json:"itemId"`
	SubmittedAt time.Time             `json:"submittedAt"`
	SubmittedBy auth.Identity         `json:"submittedBy"`
	Record      injury.ExternalRecord `json:"record"`
	Form        injury.FormState      `json:"form"`
}

// Key returns the object key prefix for a report, without extension.
func Key(itemID string, submittedAt time.Time) string {
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	return fmt.Sprintf("reports/%d/%s", submittedAt.UTC().Year(), itemID)
}

// ReportSubmitted stores the record as JSON and, when a renderer is set,
// the PDF next to it.
func (a *Archive) ReportSubmitted(ctx context.Context, sub draft.Submission) error {
	key := Key(sub.ItemID, sub.SubmittedAt)

	doc, err := json.MarshalIndent(document{
		ItemID:      sub.ItemID,
		SubmittedAt: sub.SubmittedAt,
		SubmittedBy: sub.SubmittedBy,
		Record:      sub.Record,
		Form:        sub.Form,
	}, "", "  ")
	if err != nil {
		return err
	}

	var errs []error
	if err := a.put(ctx, key+".json", "application/json", doc); err != nil {
		errs = append(errs, err)
	}
	if a.renderer != nil {
		pdf, err := a.renderer.Render(sub.Record, sub.Form)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to render %s: %w", key, err))
		} else if err := a.put(ctx, key+".pdf", "application/pdf", pdf); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		a.logger.Info("report archived", zap.String("bucket", a.bucket), zap.String("key", key))
	}
	return errors.Join(errs...)
}

func (a *Archive) put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
