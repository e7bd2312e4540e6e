package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	FactoryDir = "factory"
	UserDir    = "user"

	mappingName = "mapping"
)

var ErrMappingNotFound = errors.New("mapping config not found")

var extensions = []string{".toml", ".yaml", ".yml"}

type dirInfo struct {
	dir        string
	configType string
}

// MappingDirs returns directories searched for mapping config, most important first.
func MappingDirs(root string) []string {
	return []string{filepath.Join(root, UserDir), filepath.Join(root, FactoryDir)}
}

// LoadMapping reads mapping from the user directory of given config root,
// factory mapping is used when no user mapping exist.
func LoadMapping(root string, middleC int) (MappingFile, error) {
	for _, info := range []dirInfo{
		{filepath.Join(root, UserDir), "user"},
		{filepath.Join(root, FactoryDir), "factory"},
	} {
		for _, ext := range extensions {
			path := filepath.Join(info.dir, mappingName+ext)

			_, err := os.Stat(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return MappingFile{}, fmt.Errorf("checking \"%s\" failed: %w", path, err)
			}

			file, err := ReadFile(path, info.configType, middleC)
			if err != nil {
				return MappingFile{}, fmt.Errorf("loading \"%s\" failed: %w", path, err)
			}
			log.Info("Mapping config loaded", zap.String("path", path), zap.String("type", info.configType), logger.Debug)
			return file, nil
		}
	}
	return MappingFile{}, fmt.Errorf("%w in \"%s\"", ErrMappingNotFound, root)
}
