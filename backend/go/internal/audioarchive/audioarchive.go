// Package audioarchive 把上传的语音原文件归档到对象存储。
package audioarchive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// ObjectPutter 是归档依赖的对象存储写操作，由 *minio.Client 实现。
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archive 把音频写入指定存储桶。
type Archive struct {
	client ObjectPutter
	bucket string
	now    func() time.Time
}

// New 创建归档器。
func New(client ObjectPutter, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket, now: time.Now}
}

// Sniff 根据内容识别音频的 MIME 类型和扩展名。
func Sniff(data []byte) (mimeType, ext string) {
	mt := mimetype.Detect(data)
	return mt.String(), mt.Extension()
}

// IsAudio 判断识别出的类型是否是可转写的音频或视频容器。
// 浏览器录音通常是 video/webm 或 audio/webm。
func IsAudio(mimeType string) bool {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.HasPrefix(base, "audio/") || strings.HasPrefix(base, "video/")
}

// Put 上传音频并返回对象名称，格式为 <user>/<yyyy>/<mm>/<dd>/<uuid><ext>。
func (a *Archive) Put(ctx context.Context, userID string, data []byte) (string, error) {
	mimeType, ext := Sniff(data)
	objectName := fmt.Sprintf("%s/%s/%s%s", safeSegment(userID), a.now().UTC().Format("2006/01/02"), uuid.NewString(), ext)

	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  mimeType,
		UserMetadata: map[string]string{"user-id": userID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object to MinIO: %w", err)
	}
	return objectName, nil
}

// safeSegment 把 Auth0 的 "auth0|abc" 这类 ID 转成可用作路径片段的形式。
func safeSegment(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "anonymous"
	}
	return sb.String()
}
