package domain

import "fmt"

const (
	DefaultSmallFileLimit int64 = 4 << 20
	DefaultChunkSize      int64 = 5 << 20
)

type UploadTarget struct {
	Folder      FolderSelection
	FileName    string
	ContentType string
	Size        int64
}

type RemoteFile struct {
	ID   string
	Name string
	Path string
	Size int64
}

// ChunkRange is an inclusive byte range of a file of Total bytes.
type ChunkRange struct {
	Start int64
	End   int64
	Total int64
}

func (r ChunkRange) Len() int64 {
	return r.End - r.Start + 1
}

func (r ChunkRange) IsLast() bool {
	return r.End == r.Total-1
}

func (r ChunkRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// SplitChunks covers [0, total) with contiguous ranges of at most size bytes.
func SplitChunks(total int64, size int64) []ChunkRange {
	if total <= 0 || size <= 0 {
		return nil
	}
	ranges := make([]ChunkRange, 0, (total+size-1)/size)
	for start := int64(0); start < total; start += size {
		end := start + size - 1
		if end >= total {
			end = total - 1
		}
		ranges = append(ranges, ChunkRange{Start: start, End: end, Total: total})
	}
	return ranges
}

// ChunkResult is either an accepted intermediate chunk or the completed file.
type ChunkResult struct {
	Done bool
	File RemoteFile
}
