package masterdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindCountries       Kind = "countries"
	KindStates          Kind = "states"
	KindCities          Kind = "cities"
	KindDocumentTypes   Kind = "document_types"
	KindGenders         Kind = "genders"
	KindBloodGroups     Kind = "blood_groups"
	KindMaritalStatuses Kind = "marital_statuses"
)

var Kinds = []Kind{KindCountries, KindStates, KindCities, KindDocumentTypes, KindGenders, KindBloodGroups, KindMaritalStatuses}

// parentKinds lists the kind a record must point at through ParentID.
var parentKinds = map[Kind]Kind{
	KindStates: KindCountries,
	KindCities: KindStates,
}

var (
	ErrUnknownKind     = errors.New("unknown master data kind")
	ErrParentRequired  = errors.New("parent record is required")
	ErrParentWrongKind = errors.New("parent record has the wrong kind")
)

func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Kinds {
		if kind == known {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKind, raw)
}

func (k Kind) Parent() (Kind, bool) {
	parent, ok := parentKinds[k]
	return parent, ok
}

type Record struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	ParentID   string          `json:"parentId,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	IsActive   bool            `json:"isActive"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Normalize trims input and upper-cases the code.
func (r *Record) Normalize() {
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	r.Name = strings.TrimSpace(r.Name)
	r.ParentID = strings.TrimSpace(r.ParentID)
	if len(r.Attributes) == 0 || string(r.Attributes) == "null" {
		r.Attributes = json.RawMessage(`{}`)
	}
}

// Export is the downloadable form of one kind.
type Export struct {
	Kind       Kind      `json:"kind"`
	ExportedAt time.Time `json:"exportedAt"`
	Count      int       `json:"count"`
	Records    []Record  `json:"records"`
}
