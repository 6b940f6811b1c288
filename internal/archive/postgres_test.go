package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveRow(id string) Row {
	return Row{
		EventID:        id,
		EventType:      "lead.created",
		EventTimestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LeadID:         "L1",
		Payload:        []byte(`{"crmLeadId":"L1"}`),
	}
}

func TestPostgresSink_InsertBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink := NewPostgresSinkWithPool(mock, "lead_events")

	eb := mock.ExpectBatch()
	eb.ExpectExec("INSERT INTO").WithArgs(
		"e1", "lead.created", archiveRow("e1").EventTimestamp,
		"L1", "", "", "", "", "", "", []byte(`{"crmLeadId":"L1"}`),
	).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	eb.ExpectExec("INSERT INTO").WithArgs(
		"e2", "lead.created", archiveRow("e2").EventTimestamp,
		"L1", "", "", "", "", "", "", []byte(`{"crmLeadId":"L1"}`),
	).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	failed, err := sink.Insert(context.Background(), []Row{archiveRow("e1"), archiveRow("e2")})
	assert.NoError(t, err)
	assert.Empty(t, failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_PerRowError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink := NewPostgresSinkWithPool(mock, "lead_events")

	eb := mock.ExpectBatch()
	eb.ExpectExec("INSERT INTO").WithArgs(
		"e1", "lead.created", archiveRow("e1").EventTimestamp,
		"L1", "", "", "", "", "", "", []byte(`{"crmLeadId":"L1"}`),
	).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	eb.ExpectExec("INSERT INTO").WithArgs(
		"e2", "lead.created", archiveRow("e2").EventTimestamp,
		"L1", "", "", "", "", "", "", []byte(`{"crmLeadId":"L1"}`),
	).WillReturnError(errors.New("value too long"))

	failed, _ := sink.Insert(context.Background(), []Row{archiveRow("e1"), archiveRow("e2")})
	require.Len(t, failed, 1)
	assert.Equal(t, "e2", failed[0].Row.EventID)
	assert.ErrorContains(t, failed[0].Err, "value too long")
}

func TestPostgresSink_EmptyBatchIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink := NewPostgresSinkWithPool(mock, "lead_events")

	failed, err := sink.Insert(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"lead_events"`, sanitizeTable("lead_events"))
	assert.Equal(t, `"analytics"."lead_events"`, sanitizeTable("analytics.lead_events"))
}
