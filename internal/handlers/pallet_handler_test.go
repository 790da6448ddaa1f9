package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
	"github.com/paletsayim/server/internal/repository"
	"github.com/paletsayim/server/internal/services"
)

type testServer struct {
	handler http.Handler
	repo    *repository.PalletRepository
	hub     *services.EventHub
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewPalletRepository(db)
	metrics := observability.NewPalletMetrics()

	var pallets *services.PalletService
	hub := services.NewEventHub(func(ctx context.Context) (*models.StockStats, error) {
		return pallets.Stats(ctx)
	}, time.Hour)
	hub.Start()
	t.Cleanup(hub.Stop)

	pallets = services.NewPalletService(repo, hub, metrics)
	allocator := services.NewReturnAllocator(repo, hub, metrics).
		WithClock(func() time.Time { return time.Date(2025, 12, 24, 9, 0, 0, 0, time.UTC) })

	handler := NewRouter(RouterConfig{
		Pallets:      NewPalletHandler(pallets, allocator, services.NewReportService(repo), services.NewLabelService(pallets)),
		Events:       NewEventsHandler(hub),
		Status:       NewStatusHandler(),
		APIKey:       apiKey,
		APIKeyHeader: "X-API-Key",
		Metrics:      metrics,
	})

	return &testServer{handler: handler, repo: repo, hub: hub}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seed(t *testing.T, pallets ...models.Pallet) {
	for i := range pallets {
		p := pallets[i]
		p.Normalize()
		require.NoError(t, s.repo.Upsert(context.Background(), &p))
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, "secret")

	for _, path := range []string{"/health", "/api/status"} {
		rec := s.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)

		resp := decode[models.StatusResponse](t, rec)
		assert.Equal(t, "UP", resp.Status)
		assert.NotEmpty(t, resp.IP)
		assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	}
}

func TestBuildInfo(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[VersionResponse](t, rec)
	assert.Equal(t, Version, resp.Version)
	assert.NotEmpty(t, resp.GoVersion)
}

func TestSync(t *testing.T) {
	t.Run("stores valid records and reports rejected ones", func(t *testing.T) {
		s := newTestServer(t, "")

		body := `[
			{"local_id":"a1","firm_name":"BEYPILIC","pallet_type":"EURO","box_count":40,"entry_date":"2025-12-22"},
			{"local_id":"a2","firm_name":"","pallet_type":"EURO","entry_date":"2025-12-22"},
			{"local_id":"a3","firm_name":"BEYPILIC","pallet_type":"EURO","entry_date":"2025-12-23","entry_time":"08:15"}
		]`
		rec := s.do(t, http.MethodPost, "/api/sync", body)
		require.Equal(t, http.StatusOK, rec.Code)

		result := decode[models.SyncResult](t, rec)
		assert.Equal(t, "Sync processing complete", result.Message)
		assert.Equal(t, 3, result.Received)
		assert.Equal(t, 2, result.Inserted)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "a2", result.Errors[0].ID)

		list := decode[models.PalletListResponse](t, s.do(t, http.MethodGet, "/api/pallets", ""))
		assert.Equal(t, 2, list.Count)
	})

	t.Run("accepts a single object", func(t *testing.T) {
		s := newTestServer(t, "")

		rec := s.do(t, http.MethodPost, "/api/sync",
			`{"local_id":"one","firm_name":"F","pallet_type":"T","entry_date":"2025-12-22"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decode[models.SyncResult](t, rec).Inserted)

		p, err := s.repo.GetByID(context.Background(), "one")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, models.StatusInStock, p.Status)
		assert.EqualValues(t, 1, p.IsSynced)
	})

	t.Run("rejects empty bodies", func(t *testing.T) {
		s := newTestServer(t, "")

		for _, body := range []string{"", "[]", "null"} {
			rec := s.do(t, http.MethodPost, "/api/sync", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Equal(t, "No data provided", decode[models.ErrorResponse](t, rec).Error, body)
		}
	})

	t.Run("rejects non record bodies", func(t *testing.T) {
		s := newTestServer(t, "")

		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/sync", `"text"`).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/sync", `[{"local_id":`).Code)
	})
}

func TestReturn(t *testing.T) {
	seedStock := func(s *testServer) {
		s.seed(t,
			models.Pallet{LocalID: "b1", FirmName: "BEYPILIC", PalletType: "EURO", EntryDate: "2025-12-22"},
			models.Pallet{LocalID: "b2", FirmName: "BEYPILIC", PalletType: "EURO", EntryDate: "2025-12-23", EntryTime: "08:15"},
			models.Pallet{LocalID: "b3", FirmName: "BEYPILIC", PalletType: "EURO", EntryDate: "2025-12-23", EntryTime: "11:40"},
		)
	}

	t.Run("returns the oldest pallets", func(t *testing.T) {
		s := newTestServer(t, "")
		seedStock(s)

		rec := s.do(t, http.MethodPost, "/api/return", `{"firm_name":"BEYPILIC","pallet_type":"EURO","count":2}`)
		require.Equal(t, http.StatusOK, rec.Code)

		result := decode[models.ReturnResult](t, rec)
		assert.Equal(t, "Pallets returned successfully", result.Message)
		assert.Equal(t, int64(2), result.ReturnedCount)

		ctx := context.Background()
		for id, want := range map[string]models.Status{"b1": models.StatusReturned, "b2": models.StatusReturned, "b3": models.StatusInStock} {
			p, err := s.repo.GetByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, p.Status, id)
		}
		p, _ := s.repo.GetByID(ctx, "b1")
		require.NotNil(t, p.ReturnDate)
		assert.Equal(t, "2025-12-24", *p.ReturnDate)
	})

	t.Run("rejects requests above stock without changes", func(t *testing.T) {
		s := newTestServer(t, "")
		seedStock(s)

		rec := s.do(t, http.MethodPost, "/api/return", `{"firm_name":"BEYPILIC","pallet_type":"EURO","count":5}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		resp := decode[models.InsufficientStockResponse](t, rec)
		assert.Equal(t, "Not enough stock to return", resp.Error)
		assert.Equal(t, 5, resp.Requested)
		assert.Equal(t, 3, resp.Available)

		counts, err := s.repo.CountByStatus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, counts[models.StatusInStock])
	})

	t.Run("rejects missing parameters", func(t *testing.T) {
		s := newTestServer(t, "")

		rec := s.do(t, http.MethodPost, "/api/return", `{"pallet_type":"EURO","count":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing parameters", decode[models.ErrorResponse](t, rec).Error)

		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/return", `{"firm_name":"F","pallet_type":"T","count":0}`).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/return", `not json`).Code)
	})
}

func TestReturnCount(t *testing.T) {
	seed := func(s *testServer) {
		s.seed(t,
			models.Pallet{LocalID: "c1", FirmName: "METRO", PalletType: "Plastik", EntryDate: "2025-12-22"},
			models.Pallet{LocalID: "c2", FirmName: "METRO", PalletType: "Plastik", EntryDate: "2025-12-23"},
		)
	}

	t.Run("accepts a numeric string", func(t *testing.T) {
		s := newTestServer(t, "")
		seed(s)

		rec := s.do(t, http.MethodPost, "/api/return", `{"firm_name":"METRO","pallet_type":"Plastik","count":"2"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(2), decode[models.ReturnResult](t, rec).ReturnedCount)
	})

	t.Run("reports a malformed count", func(t *testing.T) {
		s := newTestServer(t, "")
		seed(s)

		for _, count := range []string{`"two"`, `1.5`, `true`, `[1]`} {
			rec := s.do(t, http.MethodPost, "/api/return", `{"firm_name":"METRO","pallet_type":"Plastik","count":`+count+`}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code, count)
			assert.Equal(t, models.ErrInvalidReturnCount.Message, decode[models.ErrorResponse](t, rec).Error, count)
		}

		counts, err := s.repo.CountByStatus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, counts[models.StatusInStock])
	})
}

func TestUpdateAndDelete(t *testing.T) {
	t.Run("updates an existing pallet", func(t *testing.T) {
		s := newTestServer(t, "")
		s.seed(t, models.Pallet{LocalID: "u1", FirmName: "F", PalletType: "T", BoxCount: 10, EntryDate: "2025-12-22"})

		rec := s.do(t, http.MethodPut, "/api/pallets/u1", `{"box_count":12,"note":"recounted"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.MessageResponse{Message: "Updated successfully", ID: "u1"}, decode[models.MessageResponse](t, rec))

		p, err := s.repo.GetByID(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 12, p.BoxCount)
		assert.Equal(t, "recounted", p.Note)
		assert.Equal(t, "F", p.FirmName)
	})

	t.Run("unknown id is not created", func(t *testing.T) {
		s := newTestServer(t, "")

		rec := s.do(t, http.MethodPut, "/api/pallets/ghost", `{"box_count":12}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Pallet not found", decode[models.ErrorResponse](t, rec).Error)

		p, err := s.repo.GetByID(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("rejects invalid fields", func(t *testing.T) {
		s := newTestServer(t, "")
		s.seed(t, models.Pallet{LocalID: "u2", FirmName: "F", PalletType: "T", EntryDate: "2025-12-22"})

		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/pallets/u2", `{"box_count":-1}`).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/pallets/u2", `{"firm_name":" "}`).Code)
	})

	t.Run("deletes a pallet", func(t *testing.T) {
		s := newTestServer(t, "")
		s.seed(t, models.Pallet{LocalID: "d1", FirmName: "F", PalletType: "T", EntryDate: "2025-12-22"})

		rec := s.do(t, http.MethodDelete, "/api/pallets/d1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Deleted successfully", decode[models.MessageResponse](t, rec).Message)

		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/pallets/d1", "").Code)
	})
}

func TestReports(t *testing.T) {
	s := newTestServer(t, "")
	s.seed(t,
		models.Pallet{LocalID: "r1", FirmName: "F", PalletType: "T", BoxCount: 10, Temperature: "4.0", EntryDate: "2025-12-22"},
		models.Pallet{LocalID: "r2", FirmName: "F", PalletType: "T", BoxCount: 20, Temperature: "5.0", EntryDate: "2025-12-23"},
	)

	t.Run("summary", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/pallets/summary", "")
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[models.StockSummaryResponse](t, rec)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, 2, resp.Data[0].InStock)
		assert.Equal(t, 30, resp.Data[0].InStockBoxes)
		assert.Equal(t, "4.5", resp.Data[0].AverageTemperature)
	})

	t.Run("export", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/pallets/export", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
		// XLSX files are zip archives
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
	})

	t.Run("label", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/pallets/r1/label", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/pallets/missing/label", "").Code)
	})
}

func TestAPIKeyOnRoutes(t *testing.T) {
	s := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/pallets", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/pallets", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "secret")

	ret := httptest.NewRequest(http.MethodPost, "/api/return", strings.NewReader(`{"firm_name":"F","pallet_type":"T","count":1}`))
	ret.Header.Set("X-API-Key", "secret")
	retRec := httptest.NewRecorder()
	s.handler.ServeHTTP(retRec, ret)
	require.Equal(t, http.StatusBadRequest, retRec.Code)

	// /metrics is outside /api and needs no key
	rec := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pallet_return_requests_total{outcome="insufficient_stock"} 1`)
}

func TestEventsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(services.Event{Type: services.EventPing}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply services.Event
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, services.EventPong, reply.Type)

	resp, err := http.Post(srv.URL+"/api/sync", "application/json",
		strings.NewReader(`{"local_id":"ws1","firm_name":"F","pallet_type":"T","entry_date":"2025-12-22"}`))
	require.NoError(t, err)
	resp.Body.Close()

	var event services.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, services.EventPalletsSynced, event.Type)
}
