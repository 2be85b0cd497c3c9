package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/apierr"
	"app/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ExportService hands out time-limited download links for finished videos.
// Final renders live under exports/{jobID}/ in the bucket; links expire so
// they cannot be shared indefinitely.
type ExportService interface {
	// GetDownloadURL verifies the export object exists and returns a
	// presigned GET URL for it.
	GetDownloadURL(ctx context.Context, job *model.Job) (string, error)
	// StoreKey is the bucket key the worker uploads a job's final render to.
	StoreKey(jobID string) string
}

type exportService struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	exportLogger  zerolog.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(s3Client *s3.Client, bucketName string, logger zerolog.Logger) ExportService {
	return &exportService{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    bucketName,
		exportLogger:  logger.With().Str("service", "ExportService").Logger(),
	}
}

func (s *exportService) StoreKey(jobID string) string {
	return fmt.Sprintf("exports/%s/final.mp4", jobID)
}

func (s *exportService) GetDownloadURL(ctx context.Context, job *model.Job) (string, error) {
	if job.Status != model.JobCompleted && job.Status != model.JobPartial {
		return "", apierr.New(apierr.CodeConflict, "Job has no export yet")
	}

	key := s.StoreKey(job.ID)
	if _, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}); err != nil {
		s.exportLogger.Error().Err(err).Str("job_id", job.ID).Str("key", key).Msg("Export object missing from storage")
		return "", apierr.New(apierr.CodeNotFound, "Export file not found in storage")
	}

	resp, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		s.exportLogger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to generate presigned download URL")
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return resp.URL, nil
}
