package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDir returns the directory used to store tarmount data.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tarmount"), nil
}

// ConfigPath returns the full path to the optional user configuration file.
func ConfigPath() (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.yaml"), nil
}

// IndexCandidates returns the index file locations tried for the given
// archive, in order of preference: next to the archive itself, then inside
// the data directory with the archive path flattened into the file name.
// The first location the process can write to wins.
func IndexCandidates(archivePath string) ([]string, error) {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, err
	}
	d, err := DataDir()
	if err != nil {
		return nil, err
	}
	escaped := strings.ReplaceAll(abs, string(filepath.Separator), "_")
	return []string{
		abs + ".index.sqlite",
		filepath.Join(d, escaped+".index.sqlite"),
	}, nil
}
