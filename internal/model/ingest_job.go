package model

// IngestJob is the queued unit of ingestion work: the id of a pending
// document and the uploaded bytes it was created from.
type IngestJob struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Data       []byte `json:"data"`
}
