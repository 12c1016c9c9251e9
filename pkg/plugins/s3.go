package plugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/platinummonkey/pvs/pkg/httputil"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// objectGetter is the slice of the S3 API the plugin uses; tests substitute
// a fake.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Plugin resolves route keys to objects in a bucket, downloading them to
// temp files for the pipeline. Origins are `s3://bucket/key`, so previews of
// distinct objects never collide in the store.
type S3Plugin struct {
	manifest *Manifest

	pattern string
	methods []string
	bucket  string
	region  string

	client objectGetter
}

// NewS3Plugin builds an S3 plugin from its manifest. Required settings:
// pattern (with a {key:.*} variable) and bucket. Optional: region,
// endpoint, access_key/secret_key (static credentials for S3-compatible
// stores), path_style.
func NewS3Plugin(manifest *Manifest) (*S3Plugin, error) {
	pattern, err := manifest.requireSetting("pattern")
	if err != nil {
		return nil, err
	}
	if !strings.Contains(pattern, "{key") {
		return nil, fmt.Errorf("plugin %s: pattern must capture a {key:.*} variable", manifest.Name)
	}
	bucket, err := manifest.requireSetting("bucket")
	if err != nil {
		return nil, err
	}

	return &S3Plugin{
		manifest: manifest,
		pattern:  pattern,
		methods:  []string{http.MethodGet},
		bucket:   bucket,
		region:   manifest.setting("region", "us-east-1"),
	}, nil
}

func (p *S3Plugin) Manifest() *Manifest { return p.manifest }
func (p *S3Plugin) Pattern() string     { return p.pattern }
func (p *S3Plugin) Methods() []string   { return p.methods }

// Load builds the S3 client from the manifest's credentials settings or the
// default AWS credential chain.
func (p *S3Plugin) Load() error {
	if p.client != nil {
		return nil
	}

	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(p.region),
	}
	if accessKey := p.manifest.setting("access_key", ""); accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, p.manifest.setting("secret_key", ""), ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("plugin %s: load AWS config: %w", p.manifest.Name, err)
	}

	pathStyle, _ := strconv.ParseBool(p.manifest.setting("path_style", "false"))
	p.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := p.manifest.setting("endpoint", ""); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
	return nil
}

func (p *S3Plugin) Unload() error { return nil }

// Resolve downloads the requested object to a temp file.
func (p *S3Plugin) Resolve(ctx context.Context, r *http.Request) (*Resolved, error) {
	key, err := httputil.PathVar(r, "key")
	if err != nil {
		return nil, fmt.Errorf("%w: no object key provided", preview.ErrBadInput)
	}

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", preview.ErrNotFound, p.bucket, key)
		}
		return nil, fmt.Errorf("%w: fetch s3://%s/%s: %v", preview.ErrTransport, p.bucket, key, err)
	}
	defer out.Body.Close()

	// Keep the extension so backend selection still works on the temp copy.
	f, err := os.CreateTemp("", "pvs-s3-*"+path.Ext(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", preview.ErrInternal, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: download s3://%s/%s: %v", preview.ErrTransport, p.bucket, key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: %v", preview.ErrInternal, err)
	}

	return &Resolved{
		Path:   f.Name(),
		Origin: "s3://" + p.bucket + "/" + key,
		Name:   path.Base(key),
	}, nil
}
