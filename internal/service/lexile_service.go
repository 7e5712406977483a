package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lexiread/lexiread-api/internal/models"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
	"github.com/lexiread/lexiread-api/pkg/export"
)

type lexileRepository interface {
	Upsert(ctx context.Context, rec *models.StudentLexile) error
	FindByUser(ctx context.Context, userID string) ([]models.StudentLexile, error)
	FindExact(ctx context.Context, userID string, term, year int) (*models.StudentLexile, error)
	FindLatest(ctx context.Context, userID string) (*models.StudentLexile, error)
	FindByUsersAndYear(ctx context.Context, userIDs []string, year int) ([]models.StudentLexile, error)
}

type studentRoster interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListStudents(ctx context.Context, grade, className string) ([]models.User, error)
}

// LexileService manages per-term literacy records, bulk uploads and the
// class overview.
type LexileService struct {
	repo      lexileRepository
	roster    studentRoster
	validator *validator.Validate
	logger    *zap.Logger
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	now       func() time.Time
}

// NewLexileService constructs the service.
func NewLexileService(repo lexileRepository, roster studentRoster, validate *validator.Validate, logger *zap.Logger) *LexileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LexileService{
		repo:      repo,
		roster:    roster,
		validator: validate,
		logger:    logger,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		now:       time.Now,
	}
}

// StudentLexileResponse bundles a student's full history with the resolved
// current score and calendar position.
type StudentLexileResponse struct {
	Records       []models.StudentLexile `json:"records"`
	CurrentLexile *int                   `json:"current_lexile"`
	CurrentTerm   int                    `json:"current_term"`
	CurrentYear   int                    `json:"current_year"`
}

// UpsertLexileRequest describes a single-record upsert.
type UpsertLexileRequest struct {
	Term   int `json:"term" validate:"required,min=1,max=3"`
	Year   int `json:"year" validate:"required,min=2000,max=2100"`
	Lexile int `json:"lexile" validate:"min=0,max=2000"`
}

// BulkLexileRequest describes a line-oriented bulk upload scoped to an
// optional grade and class.
type BulkLexileRequest struct {
	Data      string `json:"data" validate:"required"`
	Term      int    `json:"term" validate:"required,min=1,max=3"`
	Year      int    `json:"year" validate:"required,min=2000,max=2100"`
	Grade     string `json:"grade"`
	ClassName string `json:"class_name"`
}

// StudentLexiles returns all records for a student plus the current score.
// Absence of any record is a valid state, not an error.
func (s *LexileService) StudentLexiles(ctx context.Context, userID string) (*StudentLexileResponse, error) {
	if _, err := s.roster.FindByID(ctx, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	records, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lexile records")
	}

	term, year := CurrentTermAndYear(s.now())
	current, err := s.CurrentLexile(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &StudentLexileResponse{
		Records:       records,
		CurrentLexile: current,
		CurrentTerm:   term,
		CurrentYear:   year,
	}, nil
}

// CurrentLexile resolves the most specific score available: the exact
// record for the current (term, year) when present, otherwise the most
// recent record across all history, otherwise nil.
func (s *LexileService) CurrentLexile(ctx context.Context, userID string) (*int, error) {
	term, year := CurrentTermAndYear(s.now())

	rec, err := s.repo.FindExact(ctx, userID, term, year)
	if err == nil {
		return &rec.Lexile, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve current lexile")
	}

	rec, err = s.repo.FindLatest(ctx, userID)
	if err == nil {
		return &rec.Lexile, nil
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve current lexile")
}

// Upsert validates and writes one (student, term, year) record. Re-running
// with identical input overwrites silently.
func (s *LexileService) Upsert(ctx context.Context, userID string, req UpsertLexileRequest) (*models.StudentLexile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lexile payload")
	}

	student, err := s.roster.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lexile records can only be assigned to students")
	}

	rec := &models.StudentLexile{
		UserID: userID,
		Term:   req.Term,
		Year:   req.Year,
		Lexile: req.Lexile,
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert lexile record")
	}
	return rec, nil
}

// BulkUpsert parses line-oriented "name, lexile" input and upserts each
// resolvable line. Failures are collected per line, never aborting the
// batch, and line numbers are 1-based.
func (s *LexileService) BulkUpsert(ctx context.Context, req BulkLexileRequest) (*models.BulkUploadSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	roster, err := s.roster.ListStudents(ctx, req.Grade, req.ClassName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	summary := &models.BulkUploadSummary{}
	for i, line := range strings.Split(req.Data, "\n") {
		lineNo := i + 1
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		result := s.processBulkLine(ctx, line, lineNo, roster, req.Term, req.Year)
		if result.Status == models.BulkLineSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, result)
	}

	return summary, nil
}

func (s *LexileService) processBulkLine(ctx context.Context, line string, lineNo int, roster []models.User, term, year int) models.BulkLineResult {
	parts := strings.SplitN(line, ",", 2)
	if len(parts) < 2 {
		return models.BulkLineResult{Line: lineNo, Name: line, Status: models.BulkLineError, Error: "invalid format: expected \"name, lexile\""}
	}

	name := strings.TrimSpace(parts[0])
	rawLexile := strings.TrimSpace(parts[1])

	lexile, err := strconv.Atoi(rawLexile)
	if err != nil {
		return models.BulkLineResult{Line: lineNo, Name: name, Status: models.BulkLineError, Error: fmt.Sprintf("invalid lexile value %q", rawLexile)}
	}
	if lexile < models.LexileMin || lexile > models.LexileMax {
		return models.BulkLineResult{Line: lineNo, Name: name, Status: models.BulkLineError, Error: fmt.Sprintf("lexile %d out of range [%d, %d]", lexile, models.LexileMin, models.LexileMax)}
	}

	student, matchErr := matchStudent(roster, name)
	if matchErr != "" {
		return models.BulkLineResult{Line: lineNo, Name: name, Status: models.BulkLineError, Error: matchErr}
	}

	rec := &models.StudentLexile{UserID: student.ID, Term: term, Year: year, Lexile: lexile}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		s.logger.Warn("bulk lexile upsert failed", zap.String("student_id", student.ID), zap.Error(err))
		return models.BulkLineResult{Line: lineNo, Name: name, Status: models.BulkLineError, Error: "failed to save record"}
	}

	return models.BulkLineResult{Line: lineNo, Name: name, Status: models.BulkLineSuccess, Lexile: &lexile}
}

// matchStudent resolves a name against the roster using case-insensitive
// substring containment in either direction. Multiple candidates fall back
// to an exact case-insensitive comparison; unresolvable ambiguity fails the
// line with the candidate list.
func matchStudent(roster []models.User, name string) (*models.User, string) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, "empty student name"
	}

	var candidates []*models.User
	for i := range roster {
		full := strings.ToLower(roster[i].FullName)
		if strings.Contains(full, needle) || strings.Contains(needle, full) {
			candidates = append(candidates, &roster[i])
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Sprintf("no matching student for %q", name)
	case 1:
		return candidates[0], ""
	}

	for _, c := range candidates {
		if strings.EqualFold(c.FullName, name) {
			return c, ""
		}
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.FullName
	}
	return nil, fmt.Sprintf("ambiguous match for %q: %s", name, strings.Join(names, ", "))
}

// ClassOverview projects term scores and trend deltas for every student in
// scope. currentLexile takes the latest non-null of term3, term2, term1
// regardless of the calendar term.
func (s *LexileService) ClassOverview(ctx context.Context, grade, className string, year int) ([]models.ClassOverviewRow, error) {
	if year <= 0 {
		_, year = CurrentTermAndYear(s.now())
	}

	roster, err := s.roster.ListStudents(ctx, grade, className)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if len(roster) == 0 {
		return []models.ClassOverviewRow{}, nil
	}

	ids := make([]string, len(roster))
	for i, student := range roster {
		ids[i] = student.ID
	}

	records, err := s.repo.FindByUsersAndYear(ctx, ids, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lexile records")
	}

	byStudent := make(map[string]map[int]int, len(roster))
	for _, rec := range records {
		if byStudent[rec.UserID] == nil {
			byStudent[rec.UserID] = make(map[int]int, 3)
		}
		byStudent[rec.UserID][rec.Term] = rec.Lexile
	}

	rows := make([]models.ClassOverviewRow, 0, len(roster))
	for _, student := range roster {
		row := models.ClassOverviewRow{
			UserID:    student.ID,
			FullName:  student.FullName,
			Grade:     student.Grade,
			ClassName: student.ClassName,
		}
		terms := byStudent[student.ID]
		row.Term1 = termValue(terms, 1)
		row.Term2 = termValue(terms, 2)
		row.Term3 = termValue(terms, 3)
		row.Trend12 = trend(row.Term1, row.Term2)
		row.Trend23 = trend(row.Term2, row.Term3)
		row.CurrentLexile = firstNonNil(row.Term3, row.Term2, row.Term1)
		rows = append(rows, row)
	}

	return rows, nil
}

// ExportClassOverview renders the overview as CSV or PDF.
func (s *LexileService) ExportClassOverview(ctx context.Context, grade, className string, year int, format string) ([]byte, string, error) {
	rows, err := s.ClassOverview(ctx, grade, className, year)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Grade", "Class", "Term 1", "Term 2", "Term 3", "Trend 1-2", "Trend 2-3", "Current"},
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":   row.FullName,
			"Grade":     strValue(row.Grade),
			"Class":     strValue(row.ClassName),
			"Term 1":    intValue(row.Term1),
			"Term 2":    intValue(row.Term2),
			"Term 3":    intValue(row.Term3),
			"Trend 1-2": trendValue(row.Trend12),
			"Trend 2-3": trendValue(row.Trend23),
			"Current":   intValue(row.CurrentLexile),
		})
	}

	switch strings.ToLower(format) {
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Class Lexile Overview %d", year))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func termValue(terms map[int]int, term int) *int {
	if terms == nil {
		return nil
	}
	if v, ok := terms[term]; ok {
		value := v
		return &value
	}
	return nil
}

func trend(earlier, later *int) *int {
	if earlier == nil || later == nil {
		return nil
	}
	delta := *later - *earlier
	return &delta
}

func firstNonNil(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func strValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func intValue(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func trendValue(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%+d", *v)
}
