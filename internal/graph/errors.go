package graph

import (
	"errors"
	"fmt"
	"os"

	"github.com/Benny93/mindgraph/internal/atomicfile"
)

// ErrInvalidDocument is wrapped by decode errors for structurally bad graph
// documents.
var ErrInvalidDocument = errors.New("invalid graph document")

// IOError is a file read or write failure that aborted an operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
