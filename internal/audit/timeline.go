package audit

import (
	"encoding/json"
	"time"
)

// TimelineFilters holds the filter set for the audit timeline.
type TimelineFilters struct {
	TenantID    int64
	From        time.Time
	To          time.Time
	ActorUserID int64
	EntityType  string
	EntityID    string
	Action      string
	Page        int
	PageSize    int
}

// TimelineRow is one line of the audit timeline.
type TimelineRow struct {
	At            time.Time       `json:"at"`
	ActorUserID   int64           `json:"actorUserId"`
	Action        string          `json:"action"`
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Before        json.RawMessage `json:"before,omitempty"`
	After         json.RawMessage `json:"after,omitempty"`
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
