package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// EmbeddingExport 是离线训练产出的向量导出件：两个平行数组，
// 第 i 个向量对应第 i 个 ID。导入前必须 Validate。
type EmbeddingExport struct {
	Model   string      `json:"model"`
	Dim     int         `json:"dim"`
	IDs     []string    `json:"ids"`
	Vectors [][]float32 `json:"vectors"`
}

// Validate 校验平行数组长度一致、维度与声明一致。
func (e *EmbeddingExport) Validate() error {
	if e.Model == "" {
		return fmt.Errorf("export: missing model name")
	}
	if len(e.IDs) != len(e.Vectors) {
		return fmt.Errorf("export: ids/vectors length mismatch: %d vs %d", len(e.IDs), len(e.Vectors))
	}
	for i, vec := range e.Vectors {
		if len(vec) != e.Dim {
			return fmt.Errorf("export: vector %d (id=%s) has dim %d, want %d", i, e.IDs[i], len(vec), e.Dim)
		}
	}
	return nil
}

// ExportLoader 向量导出件加载器接口。
// 支持从不同来源加载（本地文件、S3 兼容存储等）。
type ExportLoader interface {
	// Load 加载导出件，source 是数据源标识（文件路径、S3 key 等）
	Load(ctx context.Context, source string) (*EmbeddingExport, error)
}

// FileExportLoader 本地文件导出件加载器。
type FileExportLoader struct{}

func NewFileExportLoader() *FileExportLoader {
	return &FileExportLoader{}
}

// Load 从本地文件加载导出件。
func (l *FileExportLoader) Load(ctx context.Context, filePath string) (*EmbeddingExport, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	return decodeExport(data)
}

// S3Client S3 兼容协议客户端接口（不直接依赖具体 SDK，支持依赖注入）。
// S3 兼容协议覆盖 AWS S3、阿里云 OSS、腾讯云 COS、MinIO 等。
type S3Client interface {
	// GetObject 获取对象内容
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3ExportLoader S3 兼容协议导出件加载器。
type S3ExportLoader struct {
	client S3Client
	bucket string
}

// NewS3ExportLoader 创建 S3 兼容协议导出件加载器。
//
// 用法：
//
//	s3Client := &MyS3Client{...}
//	loader := feature.NewS3ExportLoader(s3Client, "my-bucket")
//	export, err := loader.Load(ctx, "models/v1.0.0/item_embeddings.json")
func NewS3ExportLoader(client S3Client, bucket string) *S3ExportLoader {
	return &S3ExportLoader{client: client, bucket: bucket}
}

// Load 从 S3 兼容存储加载导出件。
func (l *S3ExportLoader) Load(ctx context.Context, key string) (*EmbeddingExport, error) {
	if l.client == nil {
		return nil, fmt.Errorf("s3 client not set")
	}
	reader, err := l.client.GetObject(ctx, l.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("get s3 object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read s3 object: %w", err)
	}
	return decodeExport(data)
}

func decodeExport(data []byte) (*EmbeddingExport, error) {
	var export EmbeddingExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	if err := export.Validate(); err != nil {
		return nil, err
	}
	return &export, nil
}

// ImportItemEmbeddings 把导出件写入物品向量 Hash。
func (fs *FeatureStore) ImportItemEmbeddings(ctx context.Context, export *EmbeddingExport) error {
	if err := export.Validate(); err != nil {
		return err
	}
	vecs := make(map[string][]float32, len(export.IDs))
	for i, id := range export.IDs {
		vecs[id] = export.Vectors[i]
	}
	return fs.CacheEmbeddings(ctx, export.Model, EmbeddingKindItem, vecs)
}

// ImportUserEmbeddings 把导出件写入用户向量 Hash。
func (fs *FeatureStore) ImportUserEmbeddings(ctx context.Context, export *EmbeddingExport) error {
	if err := export.Validate(); err != nil {
		return err
	}
	vecs := make(map[string][]float32, len(export.IDs))
	for i, id := range export.IDs {
		vecs[id] = export.Vectors[i]
	}
	return fs.CacheEmbeddings(ctx, export.Model, EmbeddingKindUser, vecs)
}
