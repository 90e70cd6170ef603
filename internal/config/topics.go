package config

// NSQ topics for worker mode.
const (
	TopicIngestRequest = "ingest.request"
	TopicIngestResult  = "ingest.result"
)
