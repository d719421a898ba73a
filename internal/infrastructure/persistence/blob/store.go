package blob

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store はアップロードファイルの保存先
// afero.Fsを抱えることで本番はOS、テストはメモリ上のファイルシステムを使える
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore は新しいStoreを作成
func NewStore(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Save はファイルを所有者スコープのディレクトリへ保存し、保存パスを返す
// ファイル名はパス要素を除去してから使う
func (s *Store) Save(userID, projectID, filename string, content []byte) (string, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename %q", filename)
	}

	dir := s.root
	if userID != "" {
		dir = filepath.Join(dir, userID)
	} else {
		dir = filepath.Join(dir, "guest")
	}
	if projectID != "" {
		dir = filepath.Join(dir, projectID)
	}

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := afero.WriteFile(s.fs, path, content, 0o644); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

// Read は保存済みファイルを読み出す
func (s *Store) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read upload file: %w", err)
	}
	return data, nil
}
