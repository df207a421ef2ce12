package models

import "time"

// Status tracks a record through its analysis lifecycle. Analyzed and
// AnalysisFailed are terminal.
type Status string

const (
	StatusReceived       Status = "received"
	StatusAnalyzed       Status = "analyzed"
	StatusAnalysisFailed Status = "analysis_failed"
)

// Metadata carries descriptive attributes captured at upload time.
type Metadata struct {
	SizeBytes   int64  `json:"tamano"`
	ContentType string `json:"content_type"`
}

// ImageRecord is one ingested sensor image. JSON tags preserve the wire
// contract the dashboard and mobile clients already depend on.
type ImageRecord struct {
	ID           string    `json:"_id"`
	FileName     string    `json:"nombre_archivo"`
	StoredPath   string    `json:"ruta"`
	CapturedAt   time.Time `json:"fecha"`
	SensorType   string    `json:"tipo_sensor"`
	Location     string    `json:"ubicacion"`
	Metadata     Metadata  `json:"metadata"`
	Status       Status    `json:"status"`
	AnalysisText string    `json:"analisis,omitempty"`
}

// Clone returns a copy safe to hand to subscribers after the original
// record keeps being updated.
func (r *ImageRecord) Clone() *ImageRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// AnalysisTask is one unit of asynchronous analysis work. It is never
// persisted; it only carries what the runner needs to process a record.
type AnalysisTask struct {
	RecordID    string
	StoredName  string
	ContentType string
}
