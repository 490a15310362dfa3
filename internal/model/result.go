package model

import "time"

// ResultRecord is one analysis response as delivered to the host, together with
// the request it answered.
type ResultRecord struct {
	ID         int64     `json:"id"`
	ManagerID  string    `json:"manager_id"`
	RequestID  uint64    `json:"request_id"`
	DatasetID  string    `json:"dataset_id,omitempty"`
	AnalysisID uint32    `json:"analysis_id"`
	Name       string    `json:"name"`
	Perform    string    `json:"perform"`
	Status     string    `json:"status"`
	Complete   bool      `json:"complete"`
	Revision   uint32    `json:"revision"`
	Results    []byte    `json:"results,omitempty"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
