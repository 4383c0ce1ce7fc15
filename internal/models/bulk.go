package models

import "time"

// BulkAddRequest asks for companies to be added to a destination collection,
// either as an explicit id list or as every member of a source collection.
type BulkAddRequest struct {
	SelectAll          bool    `json:"select_all"`
	SourceCollectionID string  `json:"source_collection_id,omitempty"`
	CompanyIDs         []int64 `json:"company_ids,omitempty"`
}

type BulkAddResponse struct {
	JobID         string `json:"job_id"`
	Message       string `json:"message"`
	EstimatedTime string `json:"estimated_time"`
}

type DryRunEstimate struct {
	EstimatedNewCompanies int           `json:"estimated_new_companies"`
	AlreadyExisting       int           `json:"already_existing"`
	EstimatedTime         string        `json:"estimated_time"`
	Strategy              StrategyKind  `json:"strategy"`
	EstimatedDuration     time.Duration `json:"-"`
}

// JobMetric is one throughput sample recorded when a job completes.
type JobMetric struct {
	Operation        StrategyKind
	RecordCount      int
	Duration         time.Duration
	ChunkSize        int
	ThroughputPerSec float64
}

type ThroughputStat struct {
	Operation     StrategyKind `json:"operation_type"`
	Runs          int          `json:"runs"`
	AvgThroughput float64      `json:"avg_throughput_per_second"`
	TotalRecords  int64        `json:"total_records"`
}
