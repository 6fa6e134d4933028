package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3PutAPI is the part of the S3 client the archive uses.
type S3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ImageArchive stores scan photos in S3 and returns their public URL.
type ImageArchive struct {
	client    S3PutAPI
	bucket    string
	region    string
	publicURL string // CloudFront base, optional
}

func NewImageArchive(ctx context.Context, region, bucket, cloudFrontURL string) (*ImageArchive, error) {
	if bucket == "" {
		return nil, errors.New("S3_BUCKET is missing")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config for S3: %w", err)
	}
	return NewImageArchiveWithClient(s3.NewFromConfig(cfg), region, bucket, cloudFrontURL), nil
}

func NewImageArchiveWithClient(client S3PutAPI, region, bucket, cloudFrontURL string) *ImageArchive {
	return &ImageArchive{client: client, bucket: bucket, region: region, publicURL: strings.TrimRight(cloudFrontURL, "/")}
}

// Archive uploads one scan image under scans/<user>/<scan><ext>.
func (a *ImageArchive) Archive(ctx context.Context, userID, scanID string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty image")
	}
	contentType := http.DetectContentType(image)
	key := fmt.Sprintf("scans/%s/%s%s", userID, scanID, extensionFor(contentType))

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	if a.publicURL != "" {
		return fmt.Sprintf("%s/%s", a.publicURL, key), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key), nil
}

func extensionFor(contentType string) string {
	contentType = strings.SplitN(contentType, ";", 2)[0]
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	if parts := strings.SplitN(contentType, "/", 2); len(parts) == 2 {
		return "." + parts[1]
	}
	return ""
}

// DecodeImage accepts either a data URL ("data:<mime>;base64,<data>") or bare
// base64 and returns the raw bytes.
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		parts := strings.SplitN(s, ",", 2)
		if len(parts) != 2 || !strings.HasSuffix(parts[0], ";base64") {
			return nil, errors.New("invalid base64 image")
		}
		s = parts[1]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return b, nil
}
