package domain

type PresignRequest struct {
	Key           string
	ContentType   string
	ContentLength int64
}

type PresignedUpload struct {
	URL       string
	Method    string
	Headers   map[string]string
	Key       string
	Bucket    string
	Region    string
	ExpiresIn int64
}

type EmailRequest struct {
	ToEmail          string
	RecordingKey     string
	TranscriptionKey string
}

const (
	RecordingKeyPrefix     = "recordings/"
	TranscriptionKeyPrefix = "transcriptions/"
)
