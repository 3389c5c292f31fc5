/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Reconciliation:
    ReconcileRequest, TableDTO, RunDTO, RowDTO

  Profiles:
    ProfileDTO, SourceProfileDTO

  Scenarios:
    ScenarioDTO

VALIDATION:
  Request types carry validator/v10 struct tags; validateRequest reports
  every failing field at once.

SEE ALSO:
  - handlers.go: Uses these types
  - recon/result.go: Result, JoinedPair
*/
package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/warp/schedule-recon/factory"
	"github.com/warp/schedule-recon/recon"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// TableDTO is a table as sent by input collaborators.
type TableDTO struct {
	Name    string     `json:"name" validate:"required"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (t *TableDTO) Table() recon.Table {
	return recon.Table{Name: t.Name, Columns: t.Columns, Rows: t.Rows}
}

// NewTableDTO converts a table for the wire.
func NewTableDTO(t recon.Table) TableDTO {
	return TableDTO{Name: t.Name, Columns: t.Columns, Rows: t.Rows}
}

// ReconcileRequest is the body of POST /api/reconciliations.
type ReconcileRequest struct {
	Partner *TableDTO `json:"partner" validate:"required"`
	LMS     *TableDTO `json:"lms" validate:"required"`
	System  *TableDTO `json:"system,omitempty"`
	Profile string    `json:"profile,omitempty" validate:"omitempty,max=64"`
}

// ErrInvalidRequest marks a request body that failed validation.
var ErrInvalidRequest = errors.New("invalid request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest returns every validation failure, wrapped in ErrInvalidRequest.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var errs *multierror.Error
	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		for _, ve := range valErrs {
			errs = multierror.Append(errs, fmt.Errorf("%s: %s", ve.Namespace(), strings.TrimSpace(ve.Tag()+" "+ve.Param())))
		}
	} else {
		errs = multierror.Append(errs, err)
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, errs.ErrorOrNil())
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RowDTO is one joined instalment.
type RowDTO struct {
	recon.JoinedPair
	MissingInstallment string `json:"missing_installment"`
}

// RunDTO represents a stored run. Rows and Findings are only filled when
// the full run is requested.
type RunDTO struct {
	ID          string                `json:"id"`
	Profile     string                `json:"profile"`
	PartnerName string                `json:"partner_name"`
	LMSName     string                `json:"lms_name"`
	SystemName  string                `json:"system_name,omitempty"`
	CreatedAt   string                `json:"created_at"`
	Summary     recon.Summary         `json:"summary"`
	Rows        []RowDTO              `json:"rows,omitempty"`
	Findings    []recon.FindingRecord `json:"findings,omitempty"`
}

// NewRunDTO converts a run. full adds rows and findings.
func NewRunDTO(run recon.Run, full bool) RunDTO {
	s := run.Summarize()
	dto := RunDTO{
		ID:          s.ID,
		Profile:     s.Profile,
		PartnerName: s.PartnerName,
		LMSName:     s.LMSName,
		SystemName:  s.SystemName,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		Summary:     s.Summary,
	}
	if full && run.Result != nil {
		dto.Rows = make([]RowDTO, len(run.Result.Pairs))
		for i, p := range run.Result.Pairs {
			dto.Rows[i] = RowDTO{JoinedPair: p, MissingInstallment: p.MissingInstallment()}
		}
		dto.Findings = run.FindingRecords()
	}
	return dto
}

// NewRunSummaryDTO converts a run listing entry.
func NewRunSummaryDTO(s recon.RunSummary) RunDTO {
	return RunDTO{
		ID:          s.ID,
		Profile:     s.Profile,
		PartnerName: s.PartnerName,
		LMSName:     s.LMSName,
		SystemName:  s.SystemName,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		Summary:     s.Summary,
	}
}

// ScheduleRowDTO is one instalment of the adjusted LMS schedule.
type ScheduleRowDTO struct {
	LoanID             recon.LoanID `json:"loan_id"`
	InstalmentNumber   int          `json:"instalment_number"`
	InstalmentDate     recon.Date   `json:"instalment_date"`
	Amount             recon.Money  `json:"amount"`
	Principal          recon.Money  `json:"principal"`
	Interest           recon.Money  `json:"interest"`
	BalanceOutstanding recon.Money  `json:"balance_outstanding"`
	Status             recon.Status `json:"status"`
}

func toScheduleDTOs(recs []recon.InstalmentRecord) []ScheduleRowDTO {
	out := make([]ScheduleRowDTO, len(recs))
	for i, r := range recs {
		out[i] = ScheduleRowDTO{
			LoanID:             r.LoanID,
			InstalmentNumber:   r.InstalmentNumber,
			InstalmentDate:     r.InstalmentDate,
			Amount:             r.Amount,
			Principal:          r.Principal,
			Interest:           r.Interest,
			BalanceOutstanding: r.BalanceOutstanding,
			Status:             r.Status,
		}
	}
	return out
}

// ProfileDTO represents a source profile.
type ProfileDTO struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Partner     SourceProfileDTO `json:"partner"`
	LMS         SourceProfileDTO `json:"lms"`
	System      SourceProfileDTO `json:"system"`
}

// SourceProfileDTO describes how one source is read.
type SourceProfileDTO struct {
	Dates   string            `json:"dates"`
	Columns map[string]string `json:"columns,omitempty"`
}

func toProfileDTO(p *factory.Profile) ProfileDTO {
	src := func(c recon.SourceConfig) SourceProfileDTO {
		d := SourceProfileDTO{Columns: c.Columns}
		if c.Dates != nil {
			d.Dates = c.Dates.String()
		}
		return d
	}
	return ProfileDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Partner:     src(p.Partner),
		LMS:         src(p.LMS),
		System:      src(p.System),
	}
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
