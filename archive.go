package eventfold

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// appendCompressedFrame compresses data as one zstd frame and appends
// it to the archive file, creating the file if it doesn't exist. The
// archive is a concatenation of such frames, one per rotation.
func appendCompressedFrame(archivePath string, data []byte) error {
	file, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return fmt.Errorf("compress frame: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finish zstd frame: %w", err)
	}
	return file.Sync()
}

// archiveStream is a streaming decompressor spanning all concatenated
// frames in the archive, presented as one continuous byte stream.
type archiveStream struct {
	file    *os.File
	decoder *zstd.Decoder
}

func (s *archiveStream) Read(p []byte) (int, error) {
	return s.decoder.Read(p)
}

func (s *archiveStream) Close() error {
	s.decoder.Close()
	return s.file.Close()
}

var _ io.ReadCloser = (*archiveStream)(nil)

// openArchiveStream opens the archive and returns a streaming
// decompressor. Returns (nil, nil) if the archive file does not
// exist yet (no rotation has happened).
func openArchiveStream(archivePath string) (io.ReadCloser, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open archive: %w", err)
	}

	decoder, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &archiveStream{file: file, decoder: decoder}, nil
}
