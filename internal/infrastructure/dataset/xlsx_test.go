package dataset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestLoadXLSX(t *testing.T) {
	buf := workbook(t, [][]any{
		{"id", "Question", "Passage"},
		{1, "ما هو القصد الجنائي", "القصد الجنائي هو ..."},
		{2, "", "المادة 317"},
		{3, "ما عقوبة السرقة", "يعاقب بالحبس"},
		{4, "سؤال بلا نص", ""},
	})

	cases, err := LoadXLSX(buf)
	require.NoError(t, err)
	assert.Equal(t, []domain.EvalCase{
		{Question: "ما هو القصد الجنائي", Passage: "القصد الجنائي هو ..."},
		{Passage: "المادة 317"},
		{Question: "ما عقوبة السرقة", Passage: "يعاقب بالحبس"},
	}, cases)
}

func TestLoadXLSXRequiresHeader(t *testing.T) {
	buf := workbook(t, [][]any{{"q", "p"}, {"a", "b"}})
	_, err := LoadXLSX(buf)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput), "got %v", err)
}

func TestLoadXLSXRejectsGarbage(t *testing.T) {
	_, err := LoadXLSX(strings.NewReader("not a workbook"))
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput), "got %v", err)
}

func TestWriteReportXLSX(t *testing.T) {
	report := &domain.EvalReport{
		Total:     2,
		Hits:      1,
		RecallAtK: 0.5,
		MRR:       0.5,
		K:         3,
		Results: []domain.EvalCaseResult{
			{Question: "ما هو القصد الجنائي", Retrieved: 3, Hit: true, Position: 1},
			{Question: "ما عقوبة السرقة", Retrieved: 3},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReportXLSX(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"results"}, f.GetSheetList())

	rows, err := f.GetRows("results")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"question", "retrieved", "hit", "position"}, rows[0])
	assert.Equal(t, []string{"ما هو القصد الجنائي", "3", "TRUE", "1"}, rows[1])
	assert.Equal(t, "recall@3", rows[4][0])
}
