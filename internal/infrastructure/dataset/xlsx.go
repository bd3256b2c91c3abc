// Package dataset loads labelled retrieval evaluation sets.
package dataset

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

const (
	questionColumn = "question"
	passageColumn  = "passage"
)

// LoadXLSX reads the first sheet of a workbook. The first row is a header
// naming the question and passage columns; other columns are ignored. Rows
// without a passage are dropped; a blank question is kept as empty.
func LoadXLSX(r io.Reader) ([]domain.EvalCase, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", fmt.Errorf("no sheets"))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read header", fmt.Errorf("sheet %s is empty", sheets[0]))
	}

	qi, pi := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case questionColumn:
			qi = i
		case passageColumn:
			pi = i
		}
	}
	if qi < 0 || pi < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read header",
			fmt.Errorf("expected %q and %q columns, got %v", questionColumn, passageColumn, rows[0]))
	}

	out := make([]domain.EvalCase, 0, len(rows)-1)
	for _, row := range rows[1:] {
		question := strings.TrimSpace(cell(row, qi))
		passage := strings.TrimSpace(cell(row, pi))
		if passage == "" {
			continue
		}
		out = append(out, domain.EvalCase{Question: question, Passage: passage})
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

const reportSheet = "results"

// WriteReportXLSX writes per-question results followed by a summary row.
func WriteReportXLSX(w io.Writer, report *domain.EvalReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := make([][]any, 0, len(report.Results)+3)
	rows = append(rows, []any{"question", "retrieved", "hit", "position"})
	for _, r := range report.Results {
		rows = append(rows, []any{r.Question, r.Retrieved, r.Hit, r.Position})
	}
	rows = append(rows,
		[]any{},
		[]any{fmt.Sprintf("recall@%d", report.K), report.RecallAtK, "mrr", report.MRR},
	)
	for i := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(reportSheet, ref, &rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
