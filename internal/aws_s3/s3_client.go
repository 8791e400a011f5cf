package aws_s3

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/IliaW/lead-scrape-worker/config"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const resultsContentType = "text/html; charset=utf-8"

type ObjectWriter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PageArchive keeps the rendered search results page of each session.
type PageArchive struct {
	client ObjectWriter
	cfg    *config.S3Config
	log    *slog.Logger
}

func NewPageArchive(cfg *config.S3Config, log *slog.Logger) (*PageArchive, error) {
	log.Info("connecting to s3...")
	ctx := context.Background()

	s3Config, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithBaseEndpoint(cfg.AwsBaseEndpoint))
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	// LocalStack does not support `virtual host addressing style` that uses s3 by default.
	// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
	var s3client *s3.Client
	if cfg.AwsAccessKey == "test" {
		log.Warn("test configuration for s3")
		s3client = s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	} else {
		s3client = s3.NewFromConfig(s3Config)
	}
	log.Info("connected to s3")

	return newPageArchive(s3client, cfg, log), nil
}

func newPageArchive(client ObjectWriter, cfg *config.S3Config, log *slog.Logger) *PageArchive {
	return &PageArchive{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// WriteResults uploads the markup and returns its url. Failures are logged and an empty url is returned.
func (a *PageArchive) WriteResults(ctx context.Context, sessionID int64, markup string) string {
	key := a.resultsKey(sessionID)
	contentType := resultsContentType
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.cfg.BucketName,
		Key:         &key,
		Body:        strings.NewReader(markup),
		ContentType: &contentType,
	})
	if err != nil {
		a.log.Error("failed to save search results to s3.", slog.Int64("session_id", sessionID),
			slog.String("err", err.Error()))
		return ""
	}
	a.log.Debug("search results saved to s3.", slog.Int64("session_id", sessionID), slog.String("key", key))

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.cfg.BucketName, a.cfg.Region, key)
}

func (a *PageArchive) resultsKey(sessionID int64) string {
	return path.Join(a.cfg.KeyPrefix, "sessions", strconv.FormatInt(sessionID, 10), "results.html")
}
