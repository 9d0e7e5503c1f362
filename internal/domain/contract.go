package domain

import (
	"context"
	"time"
)

// BusinessPartner is a client or vendor entity. Code is the 4-character
// partner code used as the middle segment of instance codes.
type BusinessPartner struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsVendor  bool      `json:"isVendor"`
	IsClient  bool      `json:"isClient"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Project groups samples and test codes under one contract
type Project struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	PartnerID   string    `json:"bpartnerId"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Sample is the logical article instances are derived from. Upstream data is
// inconsistent about whether Code or ID links an instance back to its sample,
// so both are carried.
type Sample struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	ProjectID string    `json:"projectId"`
	PartnerID string    `json:"bpartnerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TestCode identifies a laboratory test offered under a contract
type TestCode struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Method    string    `json:"method,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Receiving is an inbound goods log entry
type Receiving struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	PartnerID  string          `json:"bpartnerId"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Lines      []ReceivingLine `json:"lines"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// ReceivingLine declares the quantity of a sample received. The instance
// reconciler converges persisted instances to this quantity.
type ReceivingLine struct {
	ID         string `json:"id"`
	SampleID   string `json:"sampleId"`
	SampleCode string `json:"sampleCode"`
	Quantity   int    `json:"quantity"`
}

// Shipping is an outbound goods log entry
type Shipping struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	PartnerID string    `json:"bpartnerId"`
	ShippedAt time.Time `json:"shippedAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Instance is one physically tracked unit derived from a sample.
// Code has the form YYYYMMDD-PPPP-NNN (date, partner code, serial).
type Instance struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	SampleID    string    `json:"sampleId,omitempty"`
	SampleCode  string    `json:"sampleCode,omitempty"`
	WarehouseID string    `json:"warehouseId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Warehouse is a storage location instances can be assigned to
type Warehouse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InstanceAPI is the slice of the backend surface the reconciler drives
type InstanceAPI interface {
	ListInstances(ctx context.Context) ([]Instance, error)
	CreateInstance(ctx context.Context, inst Instance) (*Instance, error)
	DeleteInstance(ctx context.Context, id string) error
}

// PartnerAPI resolves the partner owning a sample, for code generation
type PartnerAPI interface {
	GetBusinessPartner(ctx context.Context, id string) (*BusinessPartner, error)
}
