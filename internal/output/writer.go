// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var _ RecordWriter = (*Writer)(nil)

// Writer handles streaming NDJSON output to a file or io.Writer.
// It is safe for concurrent use; lines are never interleaved.
type Writer struct {
	mu        sync.Mutex
	output    io.Writer
	encoder   *json.Encoder
	count     int
	closeFunc func() error
}

// NewWriter creates a new NDJSON writer that writes to the specified output.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		output:  w,
		encoder: json.NewEncoder(w),
	}
}

// NewFileWriter creates a new NDJSON writer that writes to a file, creating
// its parent directory if needed.
// The caller must call Close() when done to ensure the file is properly closed.
func NewFileWriter(filename string) (*Writer, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	return &Writer{
		output:    file,
		encoder:   json.NewEncoder(file),
		closeFunc: file.Close,
	}, nil
}

// Write writes a single value as one NDJSON line.
func (w *Writer) Write(record any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	w.count++
	return nil
}

// Emit wraps data in a Record and writes it.
func (w *Writer) Emit(kind, owner, name string, data any) error {
	return w.Write(Record{Kind: kind, Owner: owner, Name: name, Data: data})
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the underlying writer if it's a file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closeFunc != nil {
		err := w.closeFunc()
		w.closeFunc = nil
		return err
	}
	return nil
}
