package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/absmach/flcoord/pkg/fl"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"
)

const listConcurrency = 8

var _ Store = (*s3Store)(nil)

type S3Config struct {
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION"            envDefault:"us-east-1"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"            envDefault:"checkpoints/"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE"    envDefault:"false"`
}

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Store keeps checkpoints under <prefix><project>/<session>/v<version>.cbor.
type s3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(ctx context.Context, cfg S3Config) (Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

func NewS3StoreWithClient(client S3API, bucket, prefix string) Store {
	return &s3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *s3Store) key(projectID, sessionID string, version uint64) string {
	return s.prefix + path.Join(projectID, sessionID, fmt.Sprintf("v%d%s", version, fileExt))
}

func (s *s3Store) Save(ctx context.Context, cp Checkpoint) (string, error) {
	cp, err := prepare(cp)
	if err != nil {
		return "", err
	}

	data, err := fl.MarshalCBOR(cp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(cp.ProjectID, cp.SessionID, cp.Version)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/cbor"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return "", ErrCheckpointExists
		}

		return "", fmt.Errorf("S3 put object failed: %w", err)
	}

	return cp.ID, nil
}

func (s *s3Store) Load(ctx context.Context, id string) (Checkpoint, error) {
	projectID, sessionID, version, err := ParseID(id)
	if err != nil {
		return Checkpoint{}, err
	}

	return s.get(ctx, s.key(projectID, sessionID, version))
}

func (s *s3Store) get(ctx context.Context, key string) (Checkpoint, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return Checkpoint{}, ErrNotFound
		}

		return Checkpoint{}, fmt.Errorf("S3 get object failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("S3 read body failed: %w", err)
	}

	var cp Checkpoint
	if err := fl.UnmarshalCBOR(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return cp, nil
}

func (s *s3Store) list(ctx context.Context, prefix string) ([]s3types.Object, error) {
	var objects []s3types.Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 list objects failed: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, fileExt) {
				objects = append(objects, obj)
			}
		}
	}

	return objects, nil
}

func (s *s3Store) Latest(ctx context.Context, projectID string) (Checkpoint, error) {
	if fl.ValidateID(projectID) != nil {
		return Checkpoint{}, ErrNotFound
	}

	objects, err := s.list(ctx, s.prefix+projectID+"/")
	if err != nil {
		return Checkpoint{}, err
	}
	if len(objects) == 0 {
		return Checkpoint{}, ErrNotFound
	}

	latest := objects[0]
	for _, obj := range objects[1:] {
		if obj.LastModified != nil && latest.LastModified != nil && obj.LastModified.After(*latest.LastModified) {
			latest = obj
		}
	}

	return s.get(ctx, *latest.Key)
}

func (s *s3Store) List(ctx context.Context, projectID, sessionID string) ([]Checkpoint, error) {
	if fl.ValidateID(projectID) != nil || fl.ValidateID(sessionID) != nil {
		return []Checkpoint{}, nil
	}

	objects, err := s.list(ctx, s.prefix+projectID+"/"+sessionID+"/")
	if err != nil {
		return nil, err
	}

	list := make([]Checkpoint, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, obj := range objects {
		g.Go(func() error {
			cp, err := s.get(gctx, *obj.Key)
			if err != nil {
				return err
			}
			list[i] = cp

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })

	return list, nil
}
