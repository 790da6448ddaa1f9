package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paletsayim/server/internal/models"
)

func rawItems(t *testing.T, items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		require.True(t, json.Valid([]byte(s)) || s == "", "test item %d", i)
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestPalletService_Sync(t *testing.T) {
	ctx := context.Background()

	t.Run("stores valid records and reports invalid ones", func(t *testing.T) {
		repo := setupTestRepo(t)
		events := &recordingPublisher{}
		svc := NewPalletService(repo, events, nil)

		result, err := svc.Sync(ctx, rawItems(t,
			`{"local_id":"f953ffe1","firm_name":"METRO","pallet_type":"Plastik","box_count":31,"entry_date":"2025-12-25"}`,
			`{"local_id":"a0c1","firm_name":"METRO","pallet_type":"Plastik","box_count":12}`,
		))
		require.NoError(t, err)

		assert.Equal(t, "Sync processing complete", result.Message)
		assert.Equal(t, 2, result.Received)
		assert.Equal(t, 1, result.Inserted)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "a0c1", result.Errors[0].ID)
		assert.Equal(t, models.ErrMissingEntryDate.Error(), result.Errors[0].Error)

		missing, err := repo.GetByID(ctx, "a0c1")
		require.NoError(t, err)
		assert.Nil(t, missing)

		assert.Equal(t, []string{EventPalletsSynced}, events.types())
	})

	t.Run("round-trips every field", func(t *testing.T) {
		svc := NewPalletService(setupTestRepo(t), nil, nil)

		_, err := svc.Sync(ctx, rawItems(t, `{
			"local_id":"p1","firm_name":"BEYPILIC","pallet_type":"Tahta","box_count":40,
			"vehicle_plate":"34 ABC 123","entry_date":"2025-12-24","entry_time":"07:45",
			"temperature":"3.5","note":"cold chain","is_synced":0
		}`))
		require.NoError(t, err)

		all, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, &models.Pallet{
			LocalID:      "p1",
			FirmName:     "BEYPILIC",
			PalletType:   "Tahta",
			BoxCount:     40,
			VehiclePlate: "34 ABC 123",
			EntryDate:    "2025-12-24",
			EntryTime:    "07:45",
			Temperature:  "3.5",
			Note:         "cold chain",
			Status:       models.StatusInStock,
			IsSynced:     1,
		}, all[0])
	})

	t.Run("resubmitting a record replaces it", func(t *testing.T) {
		svc := NewPalletService(setupTestRepo(t), nil, nil)
		record := `{"local_id":"p1","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24","status":"RETURNED","return_date":"2025-12-25"}`

		_, err := svc.Sync(ctx, rawItems(t, record))
		require.NoError(t, err)
		result, err := svc.Sync(ctx, rawItems(t, `{"local_id":"p1","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24"}`))
		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted)

		p, err := svc.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusInStock, p.Status)
		assert.Nil(t, p.ReturnDate)
	})

	t.Run("malformed record keeps its id when readable", func(t *testing.T) {
		svc := NewPalletService(setupTestRepo(t), nil, nil)

		result, err := svc.Sync(ctx, rawItems(t,
			`{"local_id":"bad","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24","box_count":"many"}`,
			`"just a string"`,
		))
		require.NoError(t, err)
		assert.Equal(t, 0, result.Inserted)
		require.Len(t, result.Errors, 2)
		assert.Equal(t, "bad", result.Errors[0].ID)
		assert.Equal(t, "", result.Errors[1].ID)
	})

	t.Run("accepts is_synced as boolean or number", func(t *testing.T) {
		svc := NewPalletService(setupTestRepo(t), nil, nil)

		result, err := svc.Sync(ctx, rawItems(t,
			`{"local_id":"t","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24","is_synced":true}`,
			`{"local_id":"f","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24","is_synced":false}`,
			`{"local_id":"z","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24","is_synced":0}`,
			`{"local_id":"x","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24","is_synced":"yes"}`,
		))
		require.NoError(t, err)
		assert.Equal(t, 3, result.Inserted)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "x", result.Errors[0].ID)

		for _, id := range []string{"t", "f", "z"} {
			p, err := svc.Get(ctx, id)
			require.NoError(t, err, id)
			assert.EqualValues(t, 1, p.IsSynced, id)
		}
	})

	t.Run("rejects invalid status and dates", func(t *testing.T) {
		svc := NewPalletService(setupTestRepo(t), nil, nil)

		result, err := svc.Sync(ctx, rawItems(t,
			`{"local_id":"s","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24","status":"LOST"}`,
			`{"local_id":"d","firm_name":"METRO","pallet_type":"Plastik","entry_date":"24.12.2025"}`,
			`{"local_id":"n","firm_name":"METRO","pallet_type":"Plastik","entry_date":"2025-12-24","box_count":-1}`,
		))
		require.NoError(t, err)
		assert.Equal(t, 0, result.Inserted)
		assert.Len(t, result.Errors, 3)
	})

	t.Run("empty batch is an invalid request", func(t *testing.T) {
		events := &recordingPublisher{}
		svc := NewPalletService(setupTestRepo(t), events, nil)

		_, err := svc.Sync(ctx, nil)
		assert.ErrorIs(t, err, models.ErrNoData)
		assert.ErrorIs(t, err, models.ErrInvalidRequest)
		assert.Empty(t, events.types())
	})
}

func TestPalletService_UpdateDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("update edits an existing pallet", func(t *testing.T) {
		repo := setupTestRepo(t)
		seedPallet(t, repo, models.Pallet{LocalID: "p1", FirmName: "METRO", PalletType: "Plastik", EntryDate: "2025-12-24"})
		events := &recordingPublisher{}
		svc := NewPalletService(repo, events, nil)

		plate := "06 XYZ 99"
		require.NoError(t, svc.Update(ctx, "p1", models.PalletUpdate{VehiclePlate: &plate}))

		p, err := svc.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, plate, p.VehiclePlate)
		assert.Equal(t, []string{EventPalletUpdated}, events.types())
	})

	t.Run("update of an unknown id is not found and creates nothing", func(t *testing.T) {
		svc := NewPalletService(setupTestRepo(t), nil, nil)

		note := "x"
		err := svc.Update(ctx, "ghost", models.PalletUpdate{Note: &note})
		assert.ErrorIs(t, err, models.ErrPalletNotFound)

		all, err := svc.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("update rejects a blank firm", func(t *testing.T) {
		repo := setupTestRepo(t)
		seedPallet(t, repo, models.Pallet{LocalID: "p1", FirmName: "METRO", PalletType: "Plastik", EntryDate: "2025-12-24"})
		svc := NewPalletService(repo, nil, nil)

		blank := " "
		err := svc.Update(ctx, "p1", models.PalletUpdate{FirmName: &blank})
		assert.ErrorIs(t, err, models.ErrInvalidRequest)
	})

	t.Run("delete", func(t *testing.T) {
		repo := setupTestRepo(t)
		seedPallet(t, repo, models.Pallet{LocalID: "p1", FirmName: "METRO", PalletType: "Plastik", EntryDate: "2025-12-24"})
		events := &recordingPublisher{}
		svc := NewPalletService(repo, events, nil)

		require.NoError(t, svc.Delete(ctx, "p1"))
		assert.ErrorIs(t, svc.Delete(ctx, "p1"), models.ErrNotFound)
		assert.Equal(t, []string{EventPalletDeleted}, events.types())
	})
}

func TestPalletService_Stats(t *testing.T) {
	repo := setupTestRepo(t)
	seedPallet(t, repo, models.Pallet{LocalID: "a", FirmName: "METRO", PalletType: "Plastik", EntryDate: "2025-12-24"})
	returnDate := "2025-12-25"
	seedPallet(t, repo, models.Pallet{LocalID: "b", FirmName: "METRO", PalletType: "Plastik", EntryDate: "2025-12-24", Status: models.StatusReturned, ReturnDate: &returnDate})
	svc := NewPalletService(repo, nil, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InStock)
	assert.Equal(t, 1, stats.Returned)
	assert.GreaterOrEqual(t, stats.Uptime, int64(0))
}

func TestPalletService_SpansCarryPalletID(t *testing.T) {
	ctx := context.Background()
	recorder := recordSpans(t)

	repo := setupTestRepo(t)
	seedPallet(t, repo, models.Pallet{LocalID: "p1", FirmName: "METRO", PalletType: "Plastik", EntryDate: "2025-12-24"})
	svc := NewPalletService(repo, nil, nil)

	note := "checked"
	require.NoError(t, svc.Update(ctx, "p1", models.PalletUpdate{Note: &note}))
	_, err := svc.Get(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "p1"))

	seen := map[string]string{}
	for _, span := range recorder.Ended() {
		if id, ok := spanAttr(span, "pallet.local_id"); ok {
			seen[span.Name()] = id
		}
	}
	assert.Equal(t, map[string]string{
		"PalletService.Update": "p1",
		"PalletService.Get":    "p1",
		"PalletService.Delete": "p1",
	}, seen)
}
