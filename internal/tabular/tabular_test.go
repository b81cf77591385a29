package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{"longitude", "latitude", "Z"},
		{106.8, -6.2, 100},
		{},
		{106.9, -6.3, 50.5},
	})
	tb, err := ReadXLSX(data)
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", tb.Sheet)
	assert.Equal(t, []string{"longitude", "latitude", "Z"}, tb.Header)
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, "106.8", tb.Cell(0, 0))
	assert.Equal(t, "50.5", tb.Cell(1, 2))
	assert.Equal(t, "", tb.Cell(5, 0))
}

func TestReadXLSXGarbage(t *testing.T) {
	_, err := ReadXLSX([]byte("not a zip"))
	assert.Error(t, err)
}

func TestReadCSVSniffsDelimiter(t *testing.T) {
	tb, err := ReadCSV([]byte("\xef\xbb\xbflon;lat;Z\n1,5;2;3\n\n4;5\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"lon", "lat", "Z"}, tb.Header)
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, "1,5", tb.Cell(0, 0))
	assert.Equal(t, "", tb.Cell(1, 2))
	assert.Equal(t, ';', tb.Delimiter)
	assert.True(t, tb.DecimalComma())

	tb, err = ReadCSV([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tb.Header)
	assert.False(t, tb.DecimalComma())
}

func TestReadEmpty(t *testing.T) {
	_, err := ReadCSV([]byte("\n , \n"))
	assert.ErrorIs(t, err, ErrEmptySheet)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	tb, err := r.Read("Sales.CSV", []byte("x,y\n1,2\n"))
	require.NoError(t, err)
	assert.Len(t, tb.Rows, 1)

	_, err = r.Read("sales.ods", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, []string{".csv", ".txt", ".xlsm", ".xlsx"}, r.Extensions())
}
