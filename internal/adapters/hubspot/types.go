package hubspot

// SearchFilter is one property filter within a filter group.
type SearchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

// SearchFilterGroup ANDs its filters together.
type SearchFilterGroup struct {
	Filters []SearchFilter `json:"filters"`
}

// SearchRequest is the body for the CRM object search endpoint.
type SearchRequest struct {
	FilterGroups []SearchFilterGroup `json:"filterGroups"`
	Properties   []string            `json:"properties,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
}

// ObjectResult is one CRM object in an API response.
type ObjectResult struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// SearchResponse is the body returned by the search endpoint.
type SearchResponse struct {
	Total   int            `json:"total"`
	Results []ObjectResult `json:"results"`
}

// AssociationTarget identifies the object an association points at.
type AssociationTarget struct {
	ID string `json:"id"`
}

// AssociationType describes the kind of association.
type AssociationType struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

// Association links a new object to an existing one.
type Association struct {
	To    AssociationTarget `json:"to"`
	Types []AssociationType `json:"types"`
}

// CreateObjectRequest is the body for creating contacts, deals and notes.
type CreateObjectRequest struct {
	Properties   map[string]string `json:"properties"`
	Associations []Association     `json:"associations,omitempty"`
}

// HubSpot-defined association type IDs used by this integration.
const (
	AssocDealToContact = 3
	AssocNoteToContact = 202
	AssocNoteToDeal    = 214
)
