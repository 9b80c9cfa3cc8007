package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirsrus/termovisor/model"
)

const testKey = "secret"

type fakeIngest struct {
	result *model.IngestResult
	err    error
	got    []model.InboundRequest
}

func (f *fakeIngest) Process(ctx context.Context, req model.InboundRequest) (*model.IngestResult, error) {
	f.got = append(f.got, req)
	return f.result, f.err
}

type fakeCommand struct {
	data interface{}
	err  error
	got  []model.Command
}

func (f *fakeCommand) Execute(ctx context.Context, cmd model.Command) (interface{}, error) {
	f.got = append(f.got, cmd)
	return f.data, f.err
}

type fakeEvents struct {
	queued []model.Event
}

func (f *fakeEvents) Emit(model.Event) {}

func (f *fakeEvents) Subscribe() (<-chan model.Event, func()) {
	ch := make(chan model.Event, len(f.queued))
	for _, e := range f.queued {
		ch <- e
	}
	return ch, func() {}
}

func (f *fakeEvents) Close() error { return nil }

type fixture struct {
	ingest  *fakeIngest
	command *fakeCommand
	events  *fakeEvents
	web     *Web
}

func newFixture(t *testing.T, debug bool) *fixture {
	t.Helper()
	f := &fixture{
		ingest:  &fakeIngest{},
		command: &fakeCommand{},
		events:  &fakeEvents{},
	}
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "termovisor_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	svc, err := NewWeb(context.Background(), f.ingest, f.command, f.events, &ConfigWeb{
		ApiKey:   testKey,
		Debug:    debug,
		Gatherer: registry,
	})
	require.NoError(t, err)
	f.web = svc.(*Web)
	return f
}

func (f *fixture) do(method, path, body string, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(HeaderApiKey, key)
	}
	rec := httptest.NewRecorder()
	f.web.e.ServeHTTP(rec, req)
	return rec
}

func TestNewWeb(t *testing.T) {
	_, err := NewWeb(context.Background(), &fakeIngest{}, &fakeCommand{}, &fakeEvents{}, nil)
	assert.Error(t, err)
	_, err = NewWeb(context.Background(), nil, &fakeCommand{}, &fakeEvents{}, &ConfigWeb{})
	assert.Error(t, err)
}

func TestWeb_Health(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWeb_Auth(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "без ключа", key: "", want: http.StatusUnauthorized},
		{name: "неверный ключ", key: "wrong", want: http.StatusUnauthorized},
		{name: "верный ключ", key: testKey, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			rec := f.do(http.MethodPost, "/api/v1/commands", `{"type":"PING"}`, tt.key)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWeb_Commands(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		data        interface{}
		err         error
		debug       bool
		wantCode    int
		wantSuccess bool
		wantError   string
		wantCorrID  string
	}{
		{
			name:        "успешная команда",
			body:        `{"type":"PING","payload":{"x":1},"correlation_id":"abc"}`,
			data:        model.Pong{Message: "pong"},
			wantCode:    http.StatusOK,
			wantSuccess: true,
			wantCorrID:  "abc",
		},
		{
			name:     "неизвестный тип",
			body:     `{"type":"REBOOT"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "нет изображения",
			body:     `{"type":"GET_VALVES","payload":{}}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "неизвестный image_id",
			body:     `{"type":"GET_VALVES","payload":{"image_id":"LEFT/1/1/x"}}`,
			err:      errors.NotFoundf("изображение"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:       "внутренняя ошибка",
			body:       `{"type":"GET_VALVES","payload":{"image_id":"LEFT/1/1/x"},"correlation_id":"c1"}`,
			err:        errors.New("сбой детектора"),
			wantCode:   http.StatusOK,
			wantError:  internalError,
			wantCorrID: "c1",
		},
		{
			name:      "внутренняя ошибка в режиме отладки",
			body:      `{"type":"GET_VALVES","payload":{"image_id":"LEFT/1/1/x"}}`,
			err:       errors.New("сбой детектора"),
			debug:     true,
			wantCode:  http.StatusOK,
			wantError: "сбой детектора",
		},
		{
			name:     "некорректный JSON",
			body:     `{"type":`,
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.debug)
			f.command.data = tt.data
			f.command.err = tt.err

			rec := f.do(http.MethodPost, "/api/v1/commands", tt.body, testKey)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				assert.Contains(t, rec.Body.String(), "detail")
				return
			}

			var res struct {
				Success       bool            `json:"success"`
				Data          json.RawMessage `json:"data"`
				Error         *string         `json:"error"`
				CorrelationID *string         `json:"correlation_id"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantSuccess, res.Success)
			require.NotNil(t, res.CorrelationID)
			if tt.wantCorrID != "" {
				assert.Equal(t, tt.wantCorrID, *res.CorrelationID)
			} else {
				assert.NotEmpty(t, *res.CorrelationID)
			}
			assert.Equal(t, *res.CorrelationID, rec.Header().Get("X-Correlation-ID"))
			if tt.wantError != "" {
				require.NotNil(t, res.Error)
				assert.Contains(t, *res.Error, tt.wantError)
			} else {
				assert.Nil(t, res.Error)
			}
		})
	}
}

func TestWeb_ProcessImages(t *testing.T) {
	date := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	result := &model.IngestResult{
		RunID: "run",
		Payloads: []model.AggregatedPayload{{
			Side: "LEFT",
			Date: date,
			Images: []model.StoredImage{
				model.NewStoredImage(model.SourceImage{Side: "LEFT", Port: 1, Section: 1, IsThermal: true}, []float64{150, 150}),
			},
		}},
	}

	tests := []struct {
		name     string
		body     string
		result   *model.IngestResult
		err      error
		wantCode int
		wantLen  int
	}{
		{
			name:     "успешная обработка",
			body:     `{"Date":"2024-05-01T10:00:00Z","Side":"LEFT"}`,
			result:   result,
			wantCode: http.StatusOK,
			wantLen:  1,
		},
		{
			name:     "дата без временной зоны",
			body:     `{"Date":"2024-05-01T10:00:00","Side":"LEFT"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "ошибка проверки запроса",
			body:     `{"Date":"2024-05-01T10:00:00Z","Side":"TOP"}`,
			err:      errors.NotValidf("сторона"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "отказ приёмника",
			body:     `{"Date":"2024-05-01T10:00:00Z","Side":"LEFT"}`,
			result:   result,
			err:      errors.Annotate(model.ErrDelivery, "статус 500"),
			wantCode: http.StatusBadGateway,
			wantLen:  1,
		},
		{
			name:     "отказ источника",
			body:     `{"Date":"2024-05-01T10:00:00Z","Side":"LEFT"}`,
			err:      errors.New("connection refused"),
			wantCode: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.ingest.result = tt.result
			f.ingest.err = tt.err

			rec := f.do(http.MethodPost, "/api/v1/process-images", tt.body, testKey)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantLen == 0 {
				return
			}
			var payloads []map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payloads))
			require.Len(t, payloads, tt.wantLen)
			images := payloads[0]["Images"].([]interface{})
			image := images[0].(map[string]interface{})
			assert.Equal(t, 2.0, image["length"])
			assert.Equal(t, []interface{}{150.0, 150.0}, image["temperatures"])
		})
	}

	t.Run("внутренняя ошибка без подробностей", func(t *testing.T) {
		f := newFixture(t, false)
		f.ingest.err = errors.New("секрет")
		rec := f.do(http.MethodPost, "/api/v1/process-images", `{"Date":"2024-05-01T10:00:00Z","Side":"LEFT"}`, testKey)
		assert.JSONEq(t, `{"detail":"internal_error"}`, rec.Body.String())
	})
}

func TestWeb_Metrics(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "termovisor_test_total 1")
}

func TestWeb_EventStream(t *testing.T) {
	f := newFixture(t, false)
	f.events.queued = []model.Event{
		{Kind: model.EventImageProcessed, RunID: "r1", Count: 4},
		{Kind: model.EventRunFinished, RunID: "r1"},
	}
	server := httptest.NewServer(f.web.e)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events?" + QueryApiKey + "=" + testKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for _, want := range f.events.queued {
		var got model.Event
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.RunID, got.RunID)
		assert.Equal(t, want.Count, got.Count)
	}

	// Без ключа соединение отклоняется
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/events", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
