package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Code4me2/data-compose/internal/hierarchy"
	"github.com/Code4me2/data-compose/internal/pkg/httpx"
	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

const (
	statusUpdateAttempts = 3
	statusRetryBaseDelay = 100 * time.Millisecond

	defaultStageLimit = 20
	maxStageLimit     = 100
)

// Guards on caller-supplied metadata keys and values; workflow engines
// occasionally template entire documents into metadata by mistake.
const (
	maxMetadataKeyLen   = 100
	maxMetadataValueLen = 1000
)

// stage maps a pipeline stage name to the documents ready for it.
type stage struct {
	documentType     string // empty matches any type
	processingStatus string
}

var stages = map[string]stage{
	"ready_chunk":     {documentType: hierarchy.TypeSourceDocument, processingStatus: hierarchy.StatusUploaded},
	"ready_summarize": {documentType: hierarchy.TypeChunk, processingStatus: hierarchy.StatusReady},
	"ready_aggregate": {documentType: hierarchy.TypeChunkSummary, processingStatus: hierarchy.StatusCompleted},
	"completed":       {processingStatus: hierarchy.StatusFinalComplete},
}

type StatusUpdateRequest struct {
	DocumentID         string         `json:"document_id"`
	ProcessingStatus   string         `json:"processing_status"`
	AdditionalMetadata map[string]any `json:"additional_metadata"`
}

type StatusUpdateResponse struct {
	Status         string `json:"status"`
	DocumentID     string `json:"document_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	UpdatedAt      string `json:"updated_at"`
	Attempt        int    `json:"attempt"`
}

type StageRequest struct {
	StageType string `json:"stage_type"`
	// Pointer: level 0 (source documents) is a real filter value,
	// distinct from "no filter".
	HierarchyLevel *int `json:"hierarchy_level"`
	Limit          int  `json:"limit"`
}

type StageDocument struct {
	DocumentID       string `json:"document_id"`
	ContentPreview   string `json:"content_preview"`
	DocumentType     string `json:"document_type"`
	HierarchyLevel   int    `json:"hierarchy_level"`
	ParentID         string `json:"parent_id,omitempty"`
	ProcessingStatus string `json:"processing_status"`
	WorkflowID       string `json:"workflow_id,omitempty"`
}

type StageResponse struct {
	Documents      []StageDocument `json:"documents"`
	TotalFound     int             `json:"total_found"`
	StageType      string          `json:"stage_type"`
	HierarchyLevel any             `json:"hierarchy_level"`
}

// StatusService moves documents through the pipeline: CAS status
// writes and stage-based work queries.
type StatusService interface {
	UpdateStatus(ctx context.Context, req StatusUpdateRequest) (*StatusUpdateResponse, error)
	GetByStage(ctx context.Context, req StageRequest) (*StageResponse, error)
}

type statusService struct {
	log   *logger.Logger
	store elastic.Store
}

func NewStatusService(log *logger.Logger, store elastic.Store) StatusService {
	return &statusService{
		log:   log.With("service", "StatusService"),
		store: store,
	}
}

func (s *statusService) UpdateStatus(ctx context.Context, req StatusUpdateRequest) (*StatusUpdateResponse, error) {
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, validationError(fmt.Errorf("document_id is required"))
	}
	if !hierarchy.ValidProcessingStatus(req.ProcessingStatus) {
		return nil, validationError(fmt.Errorf(
			"invalid processing_status %q; valid: %s",
			req.ProcessingStatus, strings.Join(hierarchy.ValidStatuses(), ", ")))
	}

	for attempt := 1; attempt <= statusUpdateAttempts; attempt++ {
		doc, err := s.store.Get(ctx, req.DocumentID)
		if err != nil {
			return nil, storeError(err)
		}

		meta, _ := doc.Source["metadata"].(map[string]any)
		if meta == nil {
			meta = map[string]any{}
			doc.Source["metadata"] = meta
		}
		previous := "unknown"
		if v, ok := meta["processing_status"].(string); ok && v != "" {
			previous = v
		}
		now := time.Now().UTC().Format(time.RFC3339)
		meta["processing_status"] = req.ProcessingStatus
		meta["previous_status"] = previous
		meta["last_updated"] = now
		meta["update_attempt"] = attempt
		s.mergeMetadata(meta, req.AdditionalMetadata)

		err = s.store.Put(ctx, doc.ID, doc.Source, &elastic.WriteOptions{
			IfSeqNo:       &doc.SeqNo,
			IfPrimaryTerm: &doc.PrimaryTerm,
		})
		if err == nil {
			s.log.Info("Status updated",
				"document_id", req.DocumentID,
				"previous_status", previous,
				"new_status", req.ProcessingStatus,
				"attempt", attempt,
			)
			return &StatusUpdateResponse{
				Status:         "updated",
				DocumentID:     req.DocumentID,
				PreviousStatus: previous,
				NewStatus:      req.ProcessingStatus,
				UpdatedAt:      now,
				Attempt:        attempt,
			}, nil
		}
		if !elastic.IsVersionConflict(err) {
			return nil, storeError(err)
		}
		if attempt < statusUpdateAttempts {
			backoff := httpx.JitterSleep(statusRetryBaseDelay * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, internalError(ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	return nil, conflictError(fmt.Errorf(
		"document %s is being modified concurrently; gave up after %d attempts",
		req.DocumentID, statusUpdateAttempts))
}

// mergeMetadata copies caller metadata into the stored map, dropping
// keys that look like injected internals and oversized values.
func (s *statusService) mergeMetadata(meta map[string]any, extra map[string]any) {
	for key, value := range extra {
		if strings.HasPrefix(key, "_") || len(key) > maxMetadataKeyLen {
			s.log.Warn("Dropping metadata key", "key", hierarchy.Preview(key, 64))
			continue
		}
		switch v := value.(type) {
		case string:
			if len(v) > maxMetadataValueLen {
				s.log.Warn("Dropping oversized metadata value", "key", key, "length", len(v))
				continue
			}
			meta[key] = v
		case bool, float64, int, int64, nil:
			meta[key] = v
		default:
			s.log.Warn("Dropping non-scalar metadata value", "key", key)
		}
	}
}

func (s *statusService) GetByStage(ctx context.Context, req StageRequest) (*StageResponse, error) {
	st, ok := stages[req.StageType]
	if !ok {
		return nil, validationError(fmt.Errorf(
			"invalid stage_type %q; valid: %s", req.StageType, strings.Join(stageNames(), ", ")))
	}
	if req.HierarchyLevel != nil && *req.HierarchyLevel < 0 {
		return nil, validationError(fmt.Errorf("hierarchy_level must be >= 0, got %d", *req.HierarchyLevel))
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultStageLimit
	}
	if limit < 1 || limit > maxStageLimit {
		return nil, validationError(fmt.Errorf("limit must be between 1 and %d, got %d", maxStageLimit, req.Limit))
	}

	must := []map[string]any{
		elastic.TermFilter("metadata.processing_status", st.processingStatus),
	}
	if st.documentType != "" {
		must = append(must, elastic.TermFilter("document_type", st.documentType))
	}
	if req.HierarchyLevel != nil {
		must = append(must, elastic.TermFilter("hierarchy.level", *req.HierarchyLevel))
	}

	result, err := s.store.Search(ctx, map[string]any{
		"size":  limit,
		"query": map[string]any{"bool": map[string]any{"must": must}},
		"sort": []map[string]any{
			{"ingestion_timestamp": map[string]any{"order": "asc"}},
			{"hierarchy.level": map[string]any{"order": "asc"}},
		},
	})
	if err != nil {
		return nil, storeError(err)
	}

	docs := make([]StageDocument, 0, len(result.Hits))
	for _, hit := range result.Hits {
		node := hierarchy.ParseNode(hit.ID, hit.Source)
		docs = append(docs, StageDocument{
			DocumentID:       node.DocumentID,
			ContentPreview:   hierarchy.Preview(node.Content, hierarchy.PreviewTree),
			DocumentType:     node.DocumentType,
			HierarchyLevel:   node.Level,
			ParentID:         node.ParentID,
			ProcessingStatus: node.ProcessingStatus(),
			WorkflowID:       node.WorkflowID,
		})
	}

	var level any = "all"
	if req.HierarchyLevel != nil {
		level = *req.HierarchyLevel
	}
	return &StageResponse{
		Documents:      docs,
		TotalFound:     len(docs),
		StageType:      req.StageType,
		HierarchyLevel: level,
	}, nil
}

func stageNames() []string {
	// Stable order for error messages.
	return []string{"completed", "ready_aggregate", "ready_chunk", "ready_summarize"}
}
