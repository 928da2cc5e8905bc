package model

// ArchiveResult is the outcome of classifying a product into an archive sub-category.
type ArchiveResult struct {
	Category   Tier   `json:"category"`
	Reason     string `json:"reason"`
	Brand      string `json:"brand,omitempty"`
	Confidence int    `json:"confidence"`
}

// ArchiveSignal is one phase's vote during archive classification.
type ArchiveSignal struct {
	Source     string `json:"source"`
	Category   Tier   `json:"category"`
	Reason     string `json:"reason,omitempty"`
	Confidence int    `json:"confidence"`
}
