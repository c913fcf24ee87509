package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/guiyumin/clipget/internal/core/webdav"
)

// WebDAVSink uploads downloads to a WebDAV directory while they stream.
type WebDAVSink struct {
	Client *webdav.Client
}

var _ Sink = (*WebDAVSink)(nil)

func (s *WebDAVSink) Name() string { return "webdav:" + s.Client.URL("") }

func (s *WebDAVSink) Create(ctx context.Context, name string) (Output, error) {
	if err := s.Client.MkdirAll(ctx); err != nil {
		return nil, err
	}
	name = s.uniqueName(ctx, name)
	w, err := s.Client.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &webdavOutput{client: s.Client, name: name, w: w}, nil
}

func (s *WebDAVSink) uniqueName(ctx context.Context, name string) string {
	if !s.Client.Exists(ctx, name) {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if !s.Client.Exists(ctx, candidate) {
			return candidate
		}
	}
}

type webdavOutput struct {
	client *webdav.Client
	name   string
	w      io.WriteCloser
}

func (o *webdavOutput) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (o *webdavOutput) Commit() (string, error) {
	if err := o.w.Close(); err != nil {
		return "", fmt.Errorf("uploading %s: %w", o.name, err)
	}
	return o.client.URL(o.name), nil
}

func (o *webdavOutput) Abort() error {
	// The PUT only finishes once the body is closed; remove whatever arrived.
	o.w.Close()
	return o.client.Remove(context.Background(), o.name)
}

// S3Options configures an S3Sink. Empty credentials fall back to the
// default AWS credential chain.
type S3Options struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Sink streams downloads into an S3 bucket using multipart uploads.
type S3Sink struct {
	Client   *s3.S3
	Uploader *s3manager.Uploader
	Bucket   string
	Prefix   string
}

var _ Sink = (*S3Sink)(nil)

// NewS3Sink creates an S3 session from opts.
func NewS3Sink(opts S3Options) (*S3Sink, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 sink: bucket is required")
	}
	cfg := aws.NewConfig()
	if opts.Region != "" {
		cfg = cfg.WithRegion(opts.Region)
	}
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}
	if opts.AccessKeyID != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentialsFromCreds(
			credentials.Value{
				AccessKeyID:     opts.AccessKeyID,
				SecretAccessKey: opts.SecretAccessKey,
			},
		))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating s3 sink for bucket `%s`: %w", opts.Bucket, err)
	}
	client := s3.New(sess)
	return &S3Sink{
		Client:   client,
		Uploader: s3manager.NewUploaderWithClient(client),
		Bucket:   opts.Bucket,
		Prefix:   strings.Trim(opts.Prefix, "/"),
	}, nil
}

func (s *S3Sink) Name() string { return "s3://" + path.Join(s.Bucket, s.Prefix) }

func (s *S3Sink) key(name string) string {
	if s.Prefix == "" {
		return name
	}
	return s.Prefix + "/" + name
}

func (s *S3Sink) exists(ctx context.Context, key string) bool {
	_, err := s.Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
		return false
	}
	// Unknown errors surface later from the upload itself.
	return false
}

func (s *S3Sink) Create(ctx context.Context, name string) (Output, error) {
	key := s.key(name)
	if s.exists(ctx, key) {
		ext := path.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for i := 1; ; i++ {
			key = s.key(fmt.Sprintf("%s (%d)%s", base, i, ext))
			if !s.exists(ctx, key) {
				break
			}
		}
	}

	pr, pw := io.Pipe()
	o := &s3Output{
		pw:       pw,
		done:     make(chan error, 1),
		location: fmt.Sprintf("s3://%s/%s", s.Bucket, key),
	}
	go func() {
		_, err := s.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		pr.CloseWithError(err)
		o.done <- err
	}()
	return o, nil
}

var errUploadAborted = errors.New("upload aborted")

type s3Output struct {
	pw       *io.PipeWriter
	done     chan error
	location string
}

func (o *s3Output) Write(p []byte) (int, error) {
	return o.pw.Write(p)
}

func (o *s3Output) Commit() (string, error) {
	o.pw.Close()
	if err := <-o.done; err != nil {
		return "", fmt.Errorf("uploading %s: %w", o.location, err)
	}
	return o.location, nil
}

// Abort fails the multipart upload, which makes the uploader discard the
// parts sent so far.
func (o *s3Output) Abort() error {
	o.pw.CloseWithError(errUploadAborted)
	if err := <-o.done; err != nil && !errors.Is(err, errUploadAborted) {
		var aerr awserr.Error
		if errors.As(err, &aerr) && errors.Is(aerr.OrigErr(), errUploadAborted) {
			return nil
		}
		return err
	}
	return nil
}
