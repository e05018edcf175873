package domain

import "time"

type Category string

const (
	CategoryClientPO         Category = "Client PO"
	CategoryVendorPO         Category = "Vendor PO"
	CategoryClientInvoice    Category = "Client Invoice"
	CategoryVendorInvoice    Category = "Vendor Invoice"
	CategoryServiceAgreement Category = "Service Agreement"
)

var (
	POCategories       = []Category{CategoryClientPO, CategoryVendorPO}
	InvoiceCategories  = []Category{CategoryClientInvoice, CategoryVendorInvoice}
	ContractCategories = []Category{CategoryServiceAgreement}
)

// Valid reports whether c is one of the known document categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryClientPO, CategoryVendorPO, CategoryClientInvoice,
		CategoryVendorInvoice, CategoryServiceAgreement:
		return true
	}
	return false
}

func (c Category) IsPO() bool {
	return c == CategoryClientPO || c == CategoryVendorPO
}

func (c Category) IsInvoice() bool {
	return c == CategoryClientInvoice || c == CategoryVendorInvoice
}

func (c Category) IsContract() bool {
	return c == CategoryServiceAgreement
}

type DocumentStatus string

const (
	StatusDraft         DocumentStatus = "Draft"
	StatusApproved      DocumentStatus = "Approved"
	StatusPendingReview DocumentStatus = "Pending Review"
	StatusFlagged       DocumentStatus = "Flagged"
)

const DefaultCurrency = "USD"

// Document is a commercial record: a purchase order, an invoice or a
// service agreement. CreatedAt is the effective document date, not the
// insertion time.
type Document struct {
	ID            string         `json:"id"`
	Title         string         `json:"title" validate:"required,max=500"`
	Category      Category       `json:"category" validate:"required,category"`
	Client        string         `json:"client" validate:"required,max=255"`
	Vendor        string         `json:"vendor,omitempty" validate:"max=255"`
	Amount        float64        `json:"amount" validate:"gte=0"`
	Currency      string         `json:"currency" validate:"required,len=3,alpha"`
	Status        DocumentStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at" validate:"required"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	Confidence    float64        `json:"confidence" validate:"gte=0,lte=1"`
	LinkedTo      string         `json:"linked_to,omitempty"`
	PDFURL        string         `json:"pdf_url,omitempty"`
	FilePath      string         `json:"file_path,omitempty"`
	Processed     bool           `json:"processed"`
	PONumber      string         `json:"po_number,omitempty"`
	InvoiceNumber string         `json:"invoice_number,omitempty"`
}

// Linked reports whether the document already points at a counterpart.
func (d *Document) Linked() bool {
	return d.LinkedTo != ""
}
