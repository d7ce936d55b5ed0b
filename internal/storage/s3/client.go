package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"synxronfiles/internal/domain"
)

const (
	defaultTimeout       = 30 * time.Second
	uploadPartSize       = 10 * 1024 * 1024 // 10MB для частей multipart-загрузки
	uploadConcurrency    = 3
	maxConcurrentCopies  = 5
	maxKeysPerDeleteCall = 1000
	trashPrefix          = "trash/"
)

var _ domain.Storage = (*Client)(nil)

// Client предоставляет методы для работы с S3-совместимым хранилищем
type Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	logger   *slog.Logger
}

// NewClient создает новый экземпляр клиента S3 и проверяет доступ к бакету
func NewClient(ctx context.Context, conf *Config, logger *slog.Logger) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 configuration: %w", err)
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	client := s3.New(s3.Options{
		BaseEndpoint:     aws.String(conf.Endpoint),
		Region:           conf.Region,
		Credentials:      creds,
		UsePathStyle:     conf.UsePathStyle,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	})

	s3Client := &Client{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
			u.Concurrency = uploadConcurrency
		}),
		bucket: conf.Bucket,
		logger: logger.With(slog.String("component", "s3_storage")),
	}

	headCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s3Client.client.HeadBucket(headCtx, &s3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return s3Client, nil
}

// Create загружает поток неизвестной длины. Uploader сам переходит
// на multipart, если поток больше одной части.
func (c *Client) Create(ctx context.Context, path string, r io.Reader) error {
	if path == "" {
		return fmt.Errorf("key is required")
	}

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(path),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", path, err)
	}

	return nil
}

// Get получает объект целиком или диапазон байт
func (c *Client) Get(ctx context.Context, path string, byteRange *domain.ByteRange) (*domain.StoredObject, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(path),
	}
	if byteRange != nil {
		input.Range = aws.String(rangeHeader(byteRange))
	}

	result, err := c.client.GetObject(ctx, input)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("object %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return &domain.StoredObject{
		Body:          result.Body,
		ContentLength: aws.ToInt64(result.ContentLength),
		ContentType:   aws.ToString(result.ContentType),
		ContentRange:  aws.ToString(result.ContentRange),
		ETag:          aws.ToString(result.ETag),
	}, nil
}

// Copy копирует объекты внутри бакета параллельно
func (c *Client) Copy(ctx context.Context, paths []domain.CopyPath) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCopies)

	for _, p := range paths {
		g.Go(func() error {
			return c.copyObject(gctx, p.SourcePath, p.TargetPath)
		})
	}

	return g.Wait()
}

// Delete удаляет объекты пачками
func (c *Client) Delete(ctx context.Context, paths []string) error {
	for _, batch := range chunkKeys(paths, maxKeysPerDeleteCall) {
		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects from S3: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}

	return nil
}

// MoveToTrash переносит объекты под префикс корзины
func (c *Client) MoveToTrash(ctx context.Context, paths []string) error {
	if err := c.move(ctx, paths, trashKey); err != nil {
		return fmt.Errorf("failed to move objects to trash: %w", err)
	}
	return nil
}

// Restore возвращает объекты из корзины
func (c *Client) Restore(ctx context.Context, paths []string) error {
	trashed := make([]string, 0, len(paths))
	for _, p := range paths {
		trashed = append(trashed, trashKey(p))
	}

	if err := c.move(ctx, trashed, untrashKey); err != nil {
		return fmt.Errorf("failed to restore objects from trash: %w", err)
	}
	return nil
}

// MoveDirectoryToTrash переносит в корзину все объекты под префиксом
func (c *Client) MoveDirectoryToTrash(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix is required")
	}

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(directoryPrefix(prefix)),
	})

	moved := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}

		keys := make([]string, 0, len(page.Contents))
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if len(keys) == 0 {
			continue
		}

		if err := c.MoveToTrash(ctx, keys); err != nil {
			return err
		}
		moved += len(keys)
	}

	c.logger.Info("directory moved to trash",
		slog.String("prefix", prefix),
		slog.Int("objects", moved),
	)

	return nil
}

func (c *Client) move(ctx context.Context, keys []string, target func(string) string) error {
	if len(keys) == 0 {
		return nil
	}

	pairs := make([]domain.CopyPath, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, domain.CopyPath{SourcePath: key, TargetPath: target(key)})
	}

	if err := c.Copy(ctx, pairs); err != nil {
		return err
	}

	return c.Delete(ctx, keys)
}

func (c *Client) copyObject(ctx context.Context, source, target string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(c.bucket + "/" + source),
		Key:        aws.String(target),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("object %s: %w", source, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to copy %s to %s: %w", source, target, err)
	}
	return nil
}
