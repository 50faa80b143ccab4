package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/orefield/specharvest/internal/specs"
)

func TestStartRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, fixedClock{testNow})
	require.NoError(t, err)

	item := specs.WorkItem{
		RunID:          "run-1",
		Brand:          "Caterpillar",
		Model:          "797F",
		EquipmentClass: "haul_truck",
	}

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(
			"run-1", "Caterpillar", "797F", "haul_truck",
			testNow, "running",
			[]byte(`{"documents_fetched":0,"fetches_denied":0,"fetches_failed":0,"candidates":0,"specs_validated":0,"specs_flagged":0,"specs_rejected":0}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StartRun(context.Background(), item))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunUpdatesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, fixedClock{testNow})
	require.NoError(t, err)

	counters := specs.RunCounters{DocumentsFetched: 4, Candidates: 31, SpecsValidated: 12}

	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(
			testNow, "succeeded", "",
			[]byte(`{"documents_fetched":4,"fetches_denied":0,"fetches_failed":0,"candidates":31,"specs_validated":12,"specs_flagged":0,"specs_rejected":0}`),
			"run-1",
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.CompleteRun(context.Background(), "run-1", specs.RunSucceeded, "", counters)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM harvest_runs").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"run_id", "brand", "model", "equipment_class",
			"started_at", "finished_at", "status", "error_message", "counters",
		}))

	_, err = store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsFiltersByStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, nil)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"run_id", "brand", "model", "equipment_class",
		"started_at", "finished_at", "status", "error_message", "counters",
	}).AddRow(
		"run-1", "Caterpillar", "797F", "haul_truck",
		testNow, nil, "succeeded", "", []byte(`{"documents_fetched":4}`),
	)

	status := specs.RunSucceeded
	statusStr := string(status)
	mock.ExpectQuery("SELECT (.+) FROM harvest_runs").
		WithArgs(&statusStr, 10, 0).
		WillReturnRows(rows)

	runs, err := store.ListRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, specs.RunSucceeded, runs[0].Status)
	require.Equal(t, 4, runs[0].Counters.DocumentsFetched)
	require.NoError(t, mock.ExpectationsWereMet())
}
