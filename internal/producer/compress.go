package producer

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// CompressZstd compresses inputPath to inputPath+".zst" and removes the
// input once the compressed file is complete.
func CompressZstd(inputPath string) (string, error) {
	outputPath := inputPath + ".zst"

	inFile, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to open input file: %w", err)
	}
	defer inFile.Close()

	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	writer, err := zstd.NewWriter(outFile)
	if err != nil {
		return "", fmt.Errorf("failed to create Zstandard writer: %w", err)
	}
	if _, err := io.Copy(writer, inFile); err != nil {
		writer.Close()
		os.Remove(outputPath)
		return "", fmt.Errorf("failed to compress file: %w", err)
	}
	// Close flushes the final frame; the output is incomplete before it.
	if err := writer.Close(); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("failed to finish Zstandard stream: %w", err)
	}
	if err := outFile.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync compressed file: %w", err)
	}

	if err := os.Remove(inputPath); err != nil {
		return "", fmt.Errorf("failed to remove uncompressed file: %w", err)
	}
	return outputPath, nil
}
