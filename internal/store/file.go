package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/paiban/loadplan/pkg/logger"
)

// FileSnapshotter 把快照写到本地 JSON 文件。
// 写入流程：临时文件 -> fsync -> 回读校验 -> 备份旧文件为 .bak -> rename。
type FileSnapshotter struct {
	path string
}

// NewFileSnapshotter 创建文件快照存储，目录不存在时自动创建
func NewFileSnapshotter(path string) (*FileSnapshotter, error) {
	if path == "" {
		return nil, fmt.Errorf("快照路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建快照目录失败: %w", err)
	}
	return &FileSnapshotter{path: path}, nil
}

// Name 后端名称
func (f *FileSnapshotter) Name() string { return "file" }

// Path 快照文件路径
func (f *FileSnapshotter) Path() string { return f.path }

// Load 读取快照；主文件损坏时回退到 .bak
func (f *FileSnapshotter) Load(ctx context.Context) (*Snapshot, error) {
	snap, err := readSnapshotFile(f.path)
	if err == nil {
		return snap, nil
	}

	bak, bakErr := readSnapshotFile(f.path + ".bak")
	if bakErr != nil || bak == nil {
		return nil, err
	}
	logger.Warn().
		Err(err).
		Str("path", f.path).
		Msg("快照文件损坏，已从备份恢复")
	return bak, nil
}

func readSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取快照文件失败: %w", err)
	}
	return UnmarshalSnapshot(data)
}

// Save 原子写入快照
func (f *FileSnapshotter) Save(ctx context.Context, s *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := s.Marshal()
	if err != nil {
		return err
	}
	return atomicWrite(f.path, content)
}

func atomicWrite(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".loadplan-tmp-*.json")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("回读临时文件失败: %w", err)
	}
	if !json.Valid(written) {
		return fmt.Errorf("临时文件内容不是合法 JSON")
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("备份快照失败: %w", err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("替换快照文件失败: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
