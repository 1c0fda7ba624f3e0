package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/logging"
	"github.com/dmitrijs2005/difychat/internal/netx"
	sc "github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/dify"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const presignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AttachmentArchive copies uploaded files to S3-compatible object storage and
// hands out presigned download links. It is inert while no bucket is configured.
type AttachmentArchive struct {
	config     *sc.Config
	httpClient *http.Client
	logger     logging.Logger
}

// NewAttachmentArchive constructs an AttachmentArchive. httpClient performs
// the presigned PUT.
func NewAttachmentArchive(cfg *sc.Config, httpClient *http.Client, l logging.Logger) *AttachmentArchive {
	return &AttachmentArchive{
		config:     cfg,
		httpClient: httpClient,
		logger:     l.With("module", "archive"),
	}
}

// Enabled reports whether a bucket is configured.
func (a *AttachmentArchive) Enabled() bool {
	return a != nil && a.config.ArchiveEnabled()
}

// StorageKey returns the object key of a stored attachment.
func StorageKey(userID int64, stored string) string {
	return fmt.Sprintf("users/%d/%s", userID, stored)
}

func (a *AttachmentArchive) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.config.S3RootUser,
			a.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// Store uploads the local file at path under StorageKey(userID, stored).
func (a *AttachmentArchive) Store(ctx context.Context, userID int64, path, stored string) error {
	if !a.Enabled() {
		return common.ErrorUnready
	}

	pc, err := a.getPresignClient(ctx)
	if err != nil {
		return fmt.Errorf("presign client: %w", err)
	}

	bucket := a.config.S3Bucket
	key := StorageKey(userID, stored)
	contentType := dify.MimeType(stored)

	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return fmt.Errorf("presign put: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}

	if err := netx.UploadToPresignedURL(ctx, a.httpClient, req.URL, f, st.Size(), contentType); err != nil {
		return err
	}

	a.logger.Debug(ctx, "attachment archived", "key", key, "size", st.Size())
	return nil
}

// PresignedURL returns a time-limited download link for a stored attachment.
func (a *AttachmentArchive) PresignedURL(ctx context.Context, userID int64, stored string) (string, error) {
	if !a.Enabled() {
		return "", common.ErrorUnready
	}

	pc, err := a.getPresignClient(ctx)
	if err != nil {
		return "", fmt.Errorf("presign client: %w", err)
	}

	bucket := a.config.S3Bucket
	key := StorageKey(userID, stored)

	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}

	return req.URL, nil
}
