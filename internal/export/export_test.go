package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/front-desk/internal/visit"
)

func TestWrite(t *testing.T) {
	records := []visit.Record{
		{
			ID: "b", EmployeeNumber: "E-2", EmployeeName: `Lee, "Jo"`, Department: "Ops",
			EmployeeEmail: "jo@example.com", EmployeePhone: "555-010-0002",
			VisitorName: "Kim", Profession: "Courier", VisitorPhone: "555-010-0003",
			Date: "2024-03-05", Time: "09:15", Arrived: true,
		},
		{ID: "a", EmployeeNumber: "E-1", Date: "2024-03-04", Time: "14:00", DidNotArrive: true},
		{ID: "c", EmployeeNumber: "E-3", Date: "2024-03-04", Time: "15:00"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, records))

	lines := bytes.Split(bytes.TrimSuffix(buf.Bytes(), []byte("\n")), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, `"Employee Number","Employee Name","Department","Employee Email","Employee Phone","Visitor Name","Profession","Visitor Phone","ID Number","Date","Time","Status"`, string(lines[0]))
	assert.Equal(t, `"E-2","Lee, ""Jo""","Ops","jo@example.com","555-010-0002","Kim","Courier","555-010-0003","","2024-03-05","09:15","Arrived"`, string(lines[1]))
	assert.Equal(t, `"E-1","","","","","","","","","2024-03-04","14:00","Did Not Arrive"`, string(lines[2]))
	assert.Equal(t, `"E-3","","","","","","","","","2024-03-04","15:00","Pending"`, string(lines[3]))

	// The output is valid CSV.
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, `Lee, "Jo"`, rows[1][1])
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, nil)
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Equal(t, "There are no visits to export", err.Error())
	assert.Zero(t, buf.Len())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "visits_all.csv", FileName(nil))

	d, err := visit.ParseDay("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "visits_2024-03-05.csv", FileName(&d))
}
