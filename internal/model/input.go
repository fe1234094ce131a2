package model

// CreateResourceInput is the client payload for creating a resource.
// An empty ID asks the service to generate one.
type CreateResourceInput struct {
	ID         string            `json:"id" validate:"omitempty,max=64,excludesall=/?# "`
	Name       string            `json:"name" validate:"required,min=2,max=100"`
	Kind       string            `json:"kind" validate:"required,min=1,max=50"`
	Attributes map[string]string `json:"attributes" validate:"omitempty,max=64,dive,keys,min=1,max=64,endkeys,max=1024"`
}

// UpdateResourceInput replaces the mutable fields of a resource.
type UpdateResourceInput struct {
	Name       string            `json:"name" validate:"required,min=2,max=100"`
	Kind       string            `json:"kind" validate:"required,min=1,max=50"`
	Status     Status            `json:"status" validate:"required,oneof=active archived deleted"`
	Attributes map[string]string `json:"attributes" validate:"omitempty,max=64,dive,keys,min=1,max=64,endkeys,max=1024"`
}
