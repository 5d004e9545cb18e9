package xempus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/atlas-broker/atlas/lib/commission/model"
)

func buildExport(t *testing.T, header []string, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheetName))
	for col, h := range header {
		ref, err := excelize.CoordinatesToCellName(col+1, 1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheetName, ref, h))
	}
	for r, row := range rows {
		for col, v := range row {
			ref, err := excelize.CoordinatesToCellName(col+1, r+2)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheetName, ref, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParse_HappyPath(t *testing.T) {
	content := buildExport(t, []string{"VSNR", "Beratungs-ID", "Berater", "Status", "VN", "Gesellschaft"},
		[][]string{
			{"123-456", "B1", "Jane Doe", "Offen", "Max Mustermann", "Carrier A"},
			{"789-012", "B2", "John Roe", "Abgeschlossen", "Erika Muster", "Carrier B"},
		})

	result, err := Parse(content)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Equal(t, 0, result.Skipped)
	require.Len(t, result.Contracts, 2)

	require.Equal(t, model.ContractOpen, result.Contracts[0].Status)
	require.Equal(t, "123456", result.Contracts[0].VSNRNormalized)
	require.Equal(t, model.SourceXempus, result.Contracts[0].Source)
	require.Equal(t, model.ContractClosed, result.Contracts[1].Status)
}

func TestParse_SkipsNichtGewuenschtRows(t *testing.T) {
	content := buildExport(t, []string{"VSNR", "Status"},
		[][]string{
			{"111", "nicht gewünscht"},
			{"222", "Beantragt"},
		})

	result, err := Parse(content)
	require.NoError(t, err)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, result.Contracts, 1)
	require.Equal(t, model.ContractApplied, result.Contracts[0].Status)
}

func TestParse_EmptyVSNRKeepsPortalID(t *testing.T) {
	content := buildExport(t, []string{"VSNR", "Beratungs-ID", "Status"},
		[][]string{{"", "PORTAL-9", "Offen"}})

	result, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, result.Contracts, 1)
	require.Equal(t, "PORTAL-9", result.Contracts[0].XempusID)
	require.Equal(t, "", result.Contracts[0].VSNR)
}

func TestParse_UnrecognizedStatusIsRowError(t *testing.T) {
	content := buildExport(t, []string{"VSNR", "Status"},
		[][]string{{"111", "Unbekannt"}})

	result, err := Parse(content)
	require.NoError(t, err)
	require.Empty(t, result.Contracts)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 2, result.Errors[0].SourceRow)
}

func TestParse_MissingSheetReturnsError(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Unrelated"))
	require.NoError(t, f.SetCellValue("Unrelated", "A1", "x"))
	_, err := f.NewSheet("Another")
	require.NoError(t, err)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = Parse(buf.Bytes())
	require.Error(t, err)
}
