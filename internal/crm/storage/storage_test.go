package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockObjectClient struct {
	mock.Mock
}

func (m *MockObjectClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	obj, _ := args.Get(0).(*minio.Object)
	return obj, args.Error(1)
}

func (m *MockObjectClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockObjectClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectClient) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func TestContractKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "signed.pdf", "contracts/CON-000001/signed.pdf"},
		{"directories are stripped", "../../etc/passwd", "contracts/CON-000001/passwd"},
		{"windows path", `C:\Users\dana\scan.pdf`, "contracts/CON-000001/scan.pdf"},
		{"empty", "", "contracts/CON-000001/document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContractKey("CON-000001", tt.filename))
		})
	}
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("exists", func(t *testing.T) {
		client := new(MockObjectClient)
		client.On("BucketExists", ctx, "crm").Return(true, nil)

		require.NoError(t, NewWithClient(client, "crm", zaptest.NewLogger(t)).EnsureBucket(ctx))
		client.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("created", func(t *testing.T) {
		client := new(MockObjectClient)
		client.On("BucketExists", ctx, "crm").Return(false, nil)
		client.On("MakeBucket", ctx, "crm", minio.MakeBucketOptions{}).Return(nil)

		require.NoError(t, NewWithClient(client, "crm", zaptest.NewLogger(t)).EnsureBucket(ctx))
		client.AssertExpectations(t)
	})

	t.Run("error", func(t *testing.T) {
		client := new(MockObjectClient)
		client.On("BucketExists", ctx, "crm").Return(false, errors.New("denied"))

		assert.Error(t, NewWithClient(client, "crm", zaptest.NewLogger(t)).EnsureBucket(ctx))
	})
}

func TestPut(t *testing.T) {
	ctx := context.Background()
	body := bytes.NewReader([]byte("%PDF-1.4"))

	client := new(MockObjectClient)
	client.On("PutObject", ctx, "crm", "contracts/CON-000001/signed.pdf", body, int64(8),
		minio.PutObjectOptions{ContentType: "application/pdf"}).Return(minio.UploadInfo{}, nil)

	store := NewWithClient(client, "crm", zaptest.NewLogger(t))
	require.NoError(t, store.Put(ctx, "contracts/CON-000001/signed.pdf", body, 8, "application/pdf"))
	client.AssertExpectations(t)
}

func TestPutError(t *testing.T) {
	ctx := context.Background()

	client := new(MockObjectClient)
	client.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("quota"))

	store := NewWithClient(client, "crm", zaptest.NewLogger(t))
	assert.Error(t, store.Put(ctx, "k", bytes.NewReader(nil), 0, ""))
}

func TestGetMissingObject(t *testing.T) {
	ctx := context.Background()

	client := new(MockObjectClient)
	client.On("StatObject", ctx, "crm", "contracts/CON-000001/gone.pdf", minio.StatObjectOptions{}).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404})

	store := NewWithClient(client, "crm", zaptest.NewLogger(t))
	_, err := store.Get(ctx, "contracts/CON-000001/gone.pdf")
	assert.ErrorIs(t, err, ErrNoSuchObject)
}
