package main

import (
	"errors"
	"os"
)

var errInvalidExtension = errors.New("source file must end in .mrimgx or .mrbakx")

func statFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("source path is a directory, expected a backup file")
	}
	return info, nil
}
