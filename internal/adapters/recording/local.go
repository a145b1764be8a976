// Package recording exposes recordings stored on the local filesystem.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/ports"
)

const TranscriptExtension = ".txt"

// Local is a recording made of an audio file and an optional transcript
// with the same base name in the same directory.
type Local struct {
	audioPath      string
	transcriptPath string
	baseName       string
}

var _ ports.RecordingSource = (*Local)(nil)

// Open resolves the recording for audioPath. transcriptPath overrides the
// sibling lookup when non-empty; baseName overrides the exported name.
func Open(audioPath string, transcriptPath string, baseName string) (*Local, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open recording %s: %w", audioPath, domain.ErrMissingAudio)
		}
		return nil, fmt.Errorf("open recording %s: %w", audioPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open recording %s: is a directory: %w", audioPath, domain.ErrMissingAudio)
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	if strings.TrimSpace(baseName) == "" {
		baseName = stem
	}
	if transcriptPath == "" {
		transcriptPath = filepath.Join(filepath.Dir(audioPath), stem+TranscriptExtension)
	}

	return &Local{audioPath: audioPath, transcriptPath: transcriptPath, baseName: baseName}, nil
}

func (l *Local) AudioFilePath() string {
	return l.audioPath
}

// TranscriptFilePath returns the transcript path and whether the file is
// present right now.
func (l *Local) TranscriptFilePath() (string, bool) {
	info, err := os.Stat(l.transcriptPath)
	if err != nil || info.IsDir() {
		return l.transcriptPath, false
	}
	return l.transcriptPath, true
}

func (l *Local) BaseFileName() string {
	return l.baseName
}

func (l *Local) HasTranscription() bool {
	_, ok := l.TranscriptFilePath()
	return ok
}

// AudioExtension returns the audio file extension including the dot.
func (l *Local) AudioExtension() string {
	return filepath.Ext(l.audioPath)
}
