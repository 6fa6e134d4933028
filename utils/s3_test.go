package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, f.err
}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestImageArchive(t *testing.T) {
	f := &fakeS3{}
	a := NewImageArchiveWithClient(f, "eu-west-1", "scans-bucket", "https://cdn.example.com/")

	url, err := a.Archive(context.Background(), "u1", "abc", jpegHeader)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/scans/u1/abc.jpg", url)
	assert.Equal(t, "scans-bucket", aws.ToString(f.in.Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(f.in.ContentType))

	direct := NewImageArchiveWithClient(f, "eu-west-1", "scans-bucket", "")
	url, err = direct.Archive(context.Background(), "u1", "abc", jpegHeader)
	require.NoError(t, err)
	assert.Equal(t, "https://scans-bucket.s3.eu-west-1.amazonaws.com/scans/u1/abc.jpg", url)

	_, err = a.Archive(context.Background(), "u1", "abc", nil)
	assert.Error(t, err)

	f.err = errors.New("access denied")
	_, err = a.Archive(context.Background(), "u1", "abc", jpegHeader)
	assert.ErrorContains(t, err, "access denied")
}

func TestDecodeImage(t *testing.T) {
	b, err := DecodeImage("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	b, err = DecodeImage("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	b, err = DecodeImage("")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = DecodeImage("data:image/png,plain")
	assert.Error(t, err)
	_, err = DecodeImage("!!!")
	assert.Error(t, err)
}
