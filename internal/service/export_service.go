package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markazapp/markaz-admin-api/internal/models"
	appErrors "github.com/markazapp/markaz-admin-api/pkg/errors"
	"github.com/markazapp/markaz-admin-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportPersonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
}

// ExportFormat names a supported roster export format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered export ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders batch rosters, attendance sheets and contact
// vCards.
type ExportService struct {
	batches     batchRepository
	enrollments batchEnrollmentRepository
	profiles    enrollmentProfileRepository
	persons     exportPersonRepository
	contacts    lookupContactRepository
	attendance  attendanceRepository
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(
	batches batchRepository,
	enrollments batchEnrollmentRepository,
	profiles enrollmentProfileRepository,
	persons exportPersonRepository,
	contacts lookupContactRepository,
	attendance attendanceRepository,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		batches:     batches,
		enrollments: enrollments,
		profiles:    profiles,
		persons:     persons,
		contacts:    contacts,
		attendance:  attendance,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// BatchRoster renders a batch's enrollment list as CSV or PDF.
func (s *ExportService) BatchRoster(ctx context.Context, batchID string, format ExportFormat) (*ExportFile, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	roster, err := s.enrollments.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{Headers: []string{"Student", "Status", "Start Date", "End Date"}}
	for _, enrollment := range roster {
		end := ""
		if enrollment.EndDate != nil {
			end = enrollment.EndDate.Format("2006-01-02")
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":    enrollment.PersonName,
			"Status":     string(enrollment.Status),
			"Start Date": enrollment.StartDate.Format("2006-01-02"),
			"End Date":   end,
		})
	}
	return s.render(dataset, batch.Name+" roster", "roster-"+slugify(batch.Name), format)
}

// AttendanceSheet renders filtered attendance records as CSV or PDF.
func (s *ExportService) AttendanceSheet(ctx context.Context, filter models.AttendanceFilter, format ExportFormat) (*ExportFile, error) {
	filter.Page = 1
	if filter.PageSize <= 0 || filter.PageSize > 1000 {
		filter.PageSize = 1000
	}
	records, _, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	dataset := export.Dataset{Headers: []string{"Date", "Student", "Program", "Batch", "Status"}}
	for _, record := range records {
		batchName := ""
		if record.BatchName != nil {
			batchName = *record.BatchName
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":    record.Date.Format("2006-01-02"),
			"Student": record.PersonName,
			"Program": string(record.Program),
			"Batch":   batchName,
			"Status":  string(record.Status),
		})
	}
	return s.render(dataset, "Attendance", "attendance", format)
}

// BatchContacts renders a vCard file for every student in a batch,
// using each student's primary phone and email.
func (s *ExportService) BatchContacts(ctx context.Context, batchID string) (*ExportFile, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	roster, err := s.enrollments.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	var cards []export.ContactCard
	for _, enrollment := range roster {
		profile, err := s.profiles.FindByID(ctx, enrollment.ProgramProfileID)
		if err != nil {
			s.logger.Warn("skipping roster member without profile",
				zap.String("enrollment_id", enrollment.ID), zap.Error(err))
			continue
		}
		person, err := s.persons.FindByID(ctx, profile.PersonID)
		if err != nil {
			continue
		}
		contacts, err := s.contacts.ListByPerson(ctx, person.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contact points")
		}
		cards = append(cards, export.CardFromPerson(person, contacts, batch.Name))
	}

	payload := export.BuildVCards(cards, time.Now())
	return &ExportFile{
		Filename:    "contacts-" + slugify(batch.Name) + ".vcf",
		ContentType: "text/vcard",
		Payload:     []byte(payload),
	}, nil
}

func (s *ExportService) render(dataset export.Dataset, title, basename string, format ExportFormat) (*ExportFile, error) {
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: basename + ".csv", ContentType: "text/csv", Payload: payload}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: basename + ".pdf", ContentType: "application/pdf", Payload: payload}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
}

func slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)
}
