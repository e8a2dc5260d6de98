package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"Musync/logger"

	"github.com/minio/minio-go/v7"
)

// 封面图片大小上限
const maxPictureSize = 10 << 20

// objectPutter is the subset of *minio.Client used to store pictures.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// PictureStore copies cover pictures reported by tag plugins into the bucket.
type PictureStore struct {
	objects    objectPutter
	bucket     string
	httpClient *http.Client
}

// NewPictureStore 创建封面存储
func NewPictureStore(client *minio.Client, bucket string) *PictureStore {
	return newPictureStore(client, bucket, &http.Client{Timeout: 30 * time.Second})
}

func newPictureStore(objects objectPutter, bucket string, httpClient *http.Client) *PictureStore {
	return &PictureStore{objects: objects, bucket: bucket, httpClient: httpClient}
}

// PictureKey 封面对象键
func PictureKey(fileID, sourceID, contentType string) string {
	return fmt.Sprintf("pictures/%s/%s%s", fileID, sourceID, extensionFor(contentType))
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}

// SavePicture downloads pictureURL and stores it, returning the object key.
func (s *PictureStore) SavePicture(ctx context.Context, fileID, sourceID, pictureURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pictureURL, nil)
	if err != nil {
		return "", fmt.Errorf("下载封面失败: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("下载封面失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("下载封面失败，状态码: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("封面类型不支持: %q", contentType)
	}
	if resp.ContentLength > maxPictureSize {
		return "", fmt.Errorf("封面过大: %d bytes", resp.ContentLength)
	}

	// 分块传输没有 Content-Length，多读一个字节判断是否超限
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPictureSize+1))
	if err != nil {
		return "", fmt.Errorf("下载封面失败: %w", err)
	}
	if len(data) > maxPictureSize {
		return "", fmt.Errorf("封面过大: 超过 %d bytes", maxPictureSize)
	}

	key := PictureKey(fileID, sourceID, contentType)
	info, err := s.objects.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传封面失败: %w", err)
	}

	logger.Debug("[PictureStore] picture stored",
		logger.FileID(fileID),
		logger.SourceID(sourceID),
		logger.String("key", path.Clean(key)),
		logger.Int64("size", info.Size))
	return key, nil
}
