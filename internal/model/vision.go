package model

import "time"

// VisionStatus tracks a product's general vision analysis.
type VisionStatus string

// Vision analysis statuses.
const (
	VisionPending    VisionStatus = "pending"
	VisionProcessing VisionStatus = "processing"
	VisionCompleted  VisionStatus = "completed"
	VisionFailed     VisionStatus = "failed"
)

// VisionAnalysis is the stored result of analyzing a product's images.
type VisionAnalysis struct {
	AnalyzedAt      time.Time    `json:"analyzed_at"`
	ProductID       string       `json:"product_id"`
	Status          VisionStatus `json:"status"`
	Brand           string       `json:"brand,omitempty"`
	ClothingType    string       `json:"clothing_type,omitempty"`
	ClothingSubType string       `json:"clothing_sub_type,omitempty"`
	Gender          string       `json:"gender,omitempty"`
	Grade           string       `json:"grade,omitempty"`
	GradeReason     string       `json:"grade_reason,omitempty"`
	Pattern         string       `json:"pattern,omitempty"`
	Fabric          string       `json:"fabric,omitempty"`
	Size            string       `json:"size,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	Colors          []string     `json:"colors,omitempty"`
	Confidence      int          `json:"confidence"`
}

// VisionStats aggregates stored vision analyses.
type VisionStats struct {
	ByGrade        map[string]int `json:"by_grade"`
	ByClothingType map[string]int `json:"by_clothing_type"`
	Total          int            `json:"total"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	Pending        int            `json:"pending"`
	AvgConfidence  float64        `json:"avg_confidence"`
}
