package export

import (
	"errors"
	"fmt"
	"time"

	"facilityfix/api/internal/repo"
)

// ErrPermitNotPrintable indicates the permit is not in a state that
// can be exported.
var ErrPermitNotPrintable = errors.New("permit not printable")

// Service renders approved work order permits to PDF.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// ExportPermit renders a permit to PDF. Only approved and completed
// permits have a printable form; pending and denied requests do not.
func (s *Service) ExportPermit(permit repo.WorkPermit) (*Result, error) {
	if permit.Status != repo.PermitApproved && permit.Status != repo.PermitCompleted {
		return nil, fmt.Errorf("%w: status %s", ErrPermitNotPrintable, permit.Status)
	}

	html, err := RenderPermitHTML(PermitData{
		PermitID:             permit.ID,
		Status:               permit.Status,
		UnitID:               permit.UnitID,
		RequestedBy:          permit.RequestedBy,
		ContractorName:       permit.ContractorName,
		ContractorContact:    permit.ContractorContact,
		ContractorCompany:    permit.ContractorCompany,
		WorkDescription:      permit.WorkDescription,
		ProposedStartDate:    permit.ProposedStartDate,
		EstimatedDuration:    permit.EstimatedDuration,
		SpecificInstructions: permit.SpecificInstructions,
		EntryRequirements:    permit.EntryRequirements,
		PermitConditions:     permit.PermitConditions,
		ApprovedBy:           permit.ApprovedBy,
		ApprovalDate:         permit.ApprovalDate,
		GeneratedAt:          time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("render permit template: %w", err)
	}

	return exportPDF(html, "work-order-permit-"+permit.ID)
}
