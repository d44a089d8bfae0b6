package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Event struct {
	ID              string          `json:"id"`
	ActorID         string          `json:"actorId"`
	Action          string          `json:"action"`
	EntityType      string          `json:"entityType"`
	EntityID        string          `json:"entityId"`
	RequestID       string          `json:"requestId"`
	IP              string          `json:"ip"`
	IsImpersonating bool            `json:"isImpersonating"`
	CreatedAt       time.Time       `json:"createdAt"`
	Before          json.RawMessage `json:"before,omitempty"`
	After           json.RawMessage `json:"after,omitempty"`
}

// Entry is one mutation to record. OrganizationID is empty for platform
// actions.
type Entry struct {
	OrganizationID  string
	ActorID         string
	IsImpersonating bool
	Action          string
	EntityType      string
	EntityID        string
	RequestID       string
	IP              string
	Before          any
	After           any
}

type Filter struct {
	Action        string
	EntityType    string
	ActorUser     string
	Impersonating *bool
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func marshalOptional(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *Service) Record(ctx context.Context, entry Entry) error {
	beforeJSON, err := marshalOptional(entry.Before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalOptional(entry.After)
	if err != nil {
		return err
	}

	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (organization_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip, is_impersonating)
    VALUES (NULLIF($1, '')::uuid, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10)
  `, entry.OrganizationID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID,
		beforeJSON, afterJSON, entry.RequestID, entry.IP, entry.IsImpersonating)
	return err
}

func (s *Service) Count(ctx context.Context, organizationID string, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", organizationID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, organizationID string, filter Filter, includeDetails bool, limit, offset int) ([]Event, error) {
	selectCols := "id, COALESCE(actor_user_id::text, ''), action, entity_type, entity_id, request_id, ip, is_impersonating, created_at"
	if includeDetails {
		selectCols += ", before_json, after_json"
	}
	query, args := buildBaseQuery("SELECT "+selectCols, organizationID, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		dest := []any{&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.IP, &evt.IsImpersonating, &evt.CreatedAt}
		if includeDetails {
			dest = append(dest, &evt.Before, &evt.After)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// buildBaseQuery scopes to one organization, or to platform events when
// organizationID is empty.
func buildBaseQuery(prefix, organizationID string, filter Filter) (string, []any) {
	var query string
	var args []any
	if organizationID == "" {
		query = prefix + " FROM audit_events WHERE organization_id IS NULL"
	} else {
		query = prefix + " FROM audit_events WHERE organization_id = $1"
		args = append(args, organizationID)
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", len(args)+1)
		args = append(args, filter.EntityType)
	}
	if filter.ActorUser != "" {
		query += fmt.Sprintf(" AND actor_user_id::text = $%d", len(args)+1)
		args = append(args, filter.ActorUser)
	}
	if filter.Impersonating != nil {
		query += fmt.Sprintf(" AND is_impersonating = $%d", len(args)+1)
		args = append(args, *filter.Impersonating)
	}
	return query, args
}
