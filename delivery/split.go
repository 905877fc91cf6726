package delivery

import (
	"fmt"
	"io"
	"os"
)

// splitFile cuts path into numbered parts of at most size bytes written next
// to it as path.001, path.002 and so on. Files that fit are returned as is.
func splitFile(path string, size int64) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if size <= 0 || info.Size() <= size {
		return []string{path}, nil
	}

	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var parts []string
	for n := 1; ; n++ {
		part := fmt.Sprintf("%s.%03d", path, n)
		out, err := os.Create(part)
		if err != nil {
			return parts, err
		}
		written, copyErr := io.CopyN(out, in, size)
		closeErr := out.Close()

		if written == 0 {
			_ = os.Remove(part)
			break
		}
		parts = append(parts, part)

		if copyErr == io.EOF {
			break
		}
		if copyErr != nil {
			return parts, copyErr
		}
		if closeErr != nil {
			return parts, closeErr
		}
	}
	return parts, nil
}
