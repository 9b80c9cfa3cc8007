package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirsrus/termovisor/controller"
	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/pkg/validator"
	"github.com/kirsrus/termovisor/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	waitRestartStartServer = 10 * time.Second
	shutdownTimeout        = 5 * time.Second
	webPort                = 8000

	// Заголовок с ключом доступа к API
	HeaderApiKey = "X-API-Key"
	// Параметр запроса с ключом доступа (для websocket из браузера)
	QueryApiKey = "api_key"

	internalError = "internal_error"
)

// ConfigWeb конфигурация структуры Web
type ConfigWeb struct {
	Log *logrus.Logger

	WebPort uint
	// Ключ доступа. Пустой ключ отключает проверку
	ApiKey           string
	CorsAllowOrigins []string
	// Подробности внутренних ошибок в ответе
	Debug bool

	// Источник метрик для /metrics. По умолчанию prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
}

// Web служба WEB-сервисов. Инициализируется через NewWeb
type Web struct {
	ctx       context.Context
	log       *logrus.Entry
	validator *validator.Validator
	e         *echo.Echo
	upgrader  websocket.Upgrader

	ingest  controller.IngestCtl
	command controller.CommandCtl
	events  service.EventSvc

	webPort uint
	apiKey  string
	debug   bool
}

// NewWeb конструктор структуры Web
func NewWeb(ctx context.Context, ingest controller.IngestCtl, command controller.CommandCtl, events service.EventSvc, config *ConfigWeb) (service.WebSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if ingest == nil {
		return nil, errors.New("не передан контроллер обработки")
	}
	if command == nil {
		return nil, errors.New("не передан контроллер команд")
	}
	if events == nil {
		return nil, errors.New("не передан поток событий")
	}

	web := Web{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "web",
			"scope":  "service",
		}),
		validator: validator.Get(),
		e:         echo.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},

		ingest:  ingest,
		command: command,
		events:  events,

		webPort: webPort,
		apiKey:  config.ApiKey,
		debug:   config.Debug,
	}
	if config.WebPort != 0 {
		web.webPort = config.WebPort
	}
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	web.e.HideBanner = true
	web.e.HidePort = true
	web.e.Use(middleware.Recover())
	cors := middleware.CORSConfig{
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, HeaderApiKey},
	}
	if len(config.CorsAllowOrigins) != 0 {
		cors.AllowOrigins = config.CorsAllowOrigins
	}
	web.e.Use(middleware.CORSWithConfig(cors))

	api := web.e.Group("/api/v1")
	api.GET("/health", web.health)
	api.POST("/commands", web.commands, web.auth)
	api.POST("/process-images", web.processImages, web.auth)
	api.GET("/events", web.eventStream, web.auth)
	web.e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	web.log.Debugf("webPort: %d", web.webPort)
	web.log.Debugf("debug: %v", web.debug)

	return &web, nil
}

// Serve запускает сервер и перезапускает его при сбое до отмены контекста
func (m *Web) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.e.Shutdown(shutdownCtx); err != nil {
			m.log.Warnf("ошибка остановки HTTP-сервера: %v", err)
		}
	}()

	for {
		m.log.Infof("старт HTTP-сервера на порту :%d", m.webPort)
		err := m.e.Start(fmt.Sprintf(":%d", m.webPort))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.log.Errorf("сервер неожиданно завершил работу: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitRestartStartServer):
		}
	}
}

// Проверка ключа доступа из заголовка X-API-Key или параметра api_key
func (m *Web) auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.apiKey == "" {
			return next(c)
		}
		key := c.Request().Header.Get(HeaderApiKey)
		if key == "" {
			key = c.QueryParam(QueryApiKey)
		}
		if key != m.apiKey {
			return c.JSON(http.StatusUnauthorized, detail("Invalid or missing API key"))
		}
		return next(c)
	}
}

func (m *Web) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Обработка команды в конверте {type, payload, correlation_id}
func (m *Web) commands(c echo.Context) error {
	var req model.CommandRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detail(fmt.Sprintf("некорректный запрос: %v", err)))
	}
	correlationID := uuid.New().String()
	if req.CorrelationID != nil && strings.TrimSpace(*req.CorrelationID) != "" {
		correlationID = *req.CorrelationID
	}
	c.Response().Header().Set("X-Correlation-ID", correlationID)

	cmd, err := model.ParseCommand(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, detail(err.Error()))
	}

	log := m.log.WithFields(map[string]interface{}{
		"command":        req.Type,
		"correlation_id": correlationID,
	})

	data, err := m.command.Execute(c.Request().Context(), cmd)
	if err != nil {
		if isBadRequest(err) {
			log.Infof("отклонена команда: %v", err)
			return c.JSON(http.StatusBadRequest, detail(err.Error()))
		}
		log.Errorf("ошибка выполнения команды: %s", errors.ErrorStack(err))
		message := internalError
		if m.debug {
			message = errors.ErrorStack(err)
		}
		return c.JSON(http.StatusOK, model.CommandResponse{
			Success:       false,
			Error:         &message,
			CorrelationID: &correlationID,
		})
	}

	log.Debug("команда выполнена")
	return c.JSON(http.StatusOK, model.CommandResponse{
		Success:       true,
		Data:          data,
		CorrelationID: &correlationID,
	})
}

// Обработка изображений за дату и сторону с отправкой записей в приёмник
func (m *Web) processImages(c echo.Context) error {
	var req model.InboundRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detail(fmt.Sprintf("некорректный запрос: %v", err)))
	}

	result, err := m.ingest.Process(c.Request().Context(), req)
	if err != nil {
		switch {
		case isBadRequest(err):
			return c.JSON(http.StatusBadRequest, detail(err.Error()))
		case errors.Cause(err) == model.ErrDelivery && result != nil:
			m.log.Errorf("ошибка отправки в приёмник: %v", err)
			return c.JSON(http.StatusBadGateway, payloads(result))
		}
		m.log.Errorf("ошибка обработки запроса: %s", errors.ErrorStack(err))
		if m.debug {
			return c.JSON(http.StatusInternalServerError, detail(errors.ErrorStack(err)))
		}
		return c.JSON(http.StatusInternalServerError, detail(internalError))
	}

	m.log.Infof("обработка %s: изображений %d, ошибок %d, записей %d, пакетов %d/%d",
		result.RunID, result.Processed, result.Failed, result.Records, result.Delivery.Sent, result.Delivery.Batches)
	return c.JSON(http.StatusOK, payloads(result))
}

// Поток событий конвейера через websocket
func (m *Web) eventStream(c echo.Context) error {
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		m.log.Warnf("ошибка подключения websocket: %v", err)
		return nil
	}
	defer conn.Close()

	events, unsubscribe := m.events.Subscribe()
	defer unsubscribe()

	// Чтение нужно только для обнаружения закрытия соединения клиентом
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return nil
		case <-closed:
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := conn.WriteJSON(event); err != nil {
				m.log.Debugf("ошибка отправки события: %v", err)
				return nil
			}
		}
	}
}

func isBadRequest(err error) bool {
	return errors.IsNotValid(err) || errors.IsNotFound(err)
}

func detail(message string) map[string]string {
	return map[string]string{"detail": message}
}

func payloads(result *model.IngestResult) []model.AggregatedPayload {
	if result.Payloads == nil {
		return make([]model.AggregatedPayload, 0)
	}
	return result.Payloads
}
