package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sidekick/internal/checklist"
	"sidekick/internal/domain"
)

func sampleInspection(t *testing.T) domain.Inspection {
	t.Helper()
	doc := checklist.Generate(checklist.DefaultCatalog(), checklist.Profile{HoistType: "crane"})
	doc, err := checklist.SetStatus(doc, "s2", checklist.StatusRepair)
	require.NoError(t, err)
	doc, _, err = checklist.SetNote(doc, "s2", "[Voice 10:30]: bolts are broken")
	require.NoError(t, err)
	doc, _, err = checklist.SetNote(doc, "t2", "slight wear")
	require.NoError(t, err)
	doc, err = checklist.SetMonitor(doc, "t2", true)
	require.NoError(t, err)
	return domain.Inspection{
		ID:          "insp-1",
		EquipmentID: "CR-102",
		InspectorID: "dana",
		Status:      domain.InspectionOpen,
		Document:    doc,
		CreatedAt:   "2024-01-01T09:15:00Z",
	}
}

func TestWriteProducesChecklistAndIssues(t *testing.T) {
	in := sampleInspection(t)
	eq := domain.Equipment{ID: "CR-102", Name: "Bay 2 crane", Type: "crane"}

	var buf bytes.Buffer
	require.NoError(t, Write(in, eq, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetSummary, SheetChecklist, SheetIssues}, f.GetSheetList())

	rows, err := f.GetRows(SheetChecklist)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, checklistHeaders, rows[0])
	assert.Equal(t, []string{"Structure", "s2", "Bolts", "REPAIR", "", "[Voice 10:30]: bolts are broken"}, rows[2])
	assert.Equal(t, []string{"Trolley", "t2", "Festoon Cable", "MONITORING", "yes", "slight wear"}, rows[8])

	issues, err := f.GetRows(SheetIssues)
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "s2", issues[1][2])
	assert.Equal(t, "t2", issues[2][2])

	overall, err := f.GetCellValue(SheetSummary, "B11")
	require.NoError(t, err)
	assert.Equal(t, "REPAIR", overall)
}

func TestBuildRequiresInspection(t *testing.T) {
	_, err := Build(domain.Inspection{}, domain.Equipment{})
	assert.Error(t, err)
}
