package model

// Analysis carries the descriptive part of a price estimate.
type Analysis struct {
	Quality         string `json:"quality"`
	Genre           string `json:"genre"`
	Duration        string `json:"duration,omitempty"`
	PotentialDemand string `json:"potentialDemand,omitempty"`
	Recommendation  string `json:"recommendation,omitempty"`
}

// Estimate is a suggested sale price for an uploaded track.
type Estimate struct {
	ID             string   `json:"estimateId,omitempty"`
	EstimatedPrice int64    `json:"estimatedPrice"`
	Currency       string   `json:"currency"`
	Confidence     int      `json:"confidence,omitempty"`
	FileName       string   `json:"fileName"`
	FileSize       int64    `json:"fileSize"`
	Analysis       Analysis `json:"analysis"`
	Recommendation string   `json:"recommendation"`
}

// PendingUpload is what the cache remembers between "upload and estimate" and
// "sell by estimate id".
type PendingUpload struct {
	UserID    int64    `json:"userId"`
	Estimate  Estimate `json:"estimate"`
	ObjectKey string   `json:"objectKey"`
	Title     string   `json:"title"`
	Artist    string   `json:"artist"`
	MIME      string   `json:"mime"`
}
