package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"app/internal/provider"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// s3Store copies a finished render from the generation service into the
// exports bucket, where the API later presigns download links against it.
type s3Store struct {
	s3Client   *s3.Client
	bucketName string
	keyFn      func(jobID string) string
	client     *http.Client
	logger     zerolog.Logger
}

// NewS3Store creates an ExportStore writing to bucketName. keyFn maps a job ID
// to its object key and must match what the download side presigns.
func NewS3Store(s3Client *s3.Client, bucketName string, keyFn func(jobID string) string, logger zerolog.Logger) ExportStore {
	return &s3Store{
		s3Client:   s3Client,
		bucketName: bucketName,
		keyFn:      keyFn,
		client:     &http.Client{},
		logger:     logger.With().Str("component", "ExportStore").Logger(),
	}
}

func (s *s3Store) Upload(ctx context.Context, jobID, srcURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading render: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("Failed to close render download body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &provider.Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	key := s.keyFn(jobID)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        resp.Body,
		ContentType: aws.String("video/mp4"),
	}
	if resp.ContentLength >= 0 {
		input.ContentLength = aws.Int64(resp.ContentLength)
	}
	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("uploading render to storage: %w", err)
	}
	s.logger.Info().Str("job_id", jobID).Str("key", key).Msg("Stored final render")
	return key, nil
}
