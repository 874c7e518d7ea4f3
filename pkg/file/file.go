package file

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileOperations defines methods for reading configuration and
// certificate material from disk.
type FileOperations interface {
	ReadFileRaw(filePath string) ([]byte, error)
	ReadYamlFile(filePath string, v any) error
}

// FileService implements the FileOperations interface using standard file
// operations.
type FileService struct{}

// NewFileService creates a new instance of FileService.
func NewFileService() *FileService {
	return &FileService{}
}

// ReadFileRaw reads the contents of the file at filePath and returns it as
// a byte array.
func (fs *FileService) ReadFileRaw(filePath string) ([]byte, error) {
	return os.ReadFile(filePath)
}

// ReadYamlFile reads the YAML file at filePath and unmarshals it into v.
func (fs *FileService) ReadYamlFile(filePath string, v any) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
