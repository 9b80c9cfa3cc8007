package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commandCtlMod "github.com/kirsrus/termovisor/controller/command"
	ingestCtlMod "github.com/kirsrus/termovisor/controller/ingest"
	"github.com/kirsrus/termovisor/controller/manager"
	roiCtlMod "github.com/kirsrus/termovisor/controller/roi"
	valveCtlMod "github.com/kirsrus/termovisor/controller/valve"
	"github.com/kirsrus/termovisor/pkg/config"
	"github.com/kirsrus/termovisor/pkg/logger"
	detectorSvcMod "github.com/kirsrus/termovisor/service/detector"
	eventsSvcMod "github.com/kirsrus/termovisor/service/events"
	sinkSvcMod "github.com/kirsrus/termovisor/service/sink"
	sourceSvcMod "github.com/kirsrus/termovisor/service/source"
	webSvcMod "github.com/kirsrus/termovisor/service/web"
	dbStoreMod "github.com/kirsrus/termovisor/store/db"
	memoryStoreMod "github.com/kirsrus/termovisor/store/memory"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

var (
	cfg *config.Config
	log *logrus.Logger
)

func init() {
	cfg = config.Get()
	log = logger.GetWithConfig(logger.Config{
		File:    logger.Path(cfg.Log.Path, cfg.Log.Filename),
		Level:   logger.ParseLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	})
}

func main() {

	err := run()
	if err != nil {
		fmt.Printf("ОШИБКА: в процессе работы произошла ошибка: %v\n", err)
		fmt.Printf("Для подробностей смотри лог: %s\n", logger.Path(cfg.Log.Path, cfg.Log.Filename))
		log.Fatal(errors.ErrorStack(err))
	}
}

func run() error {
	started := time.Now()

	// Отлавливаем сигнал завершения работы программы
	chanInterrupt := make(chan os.Signal, 1)
	signal.Notify(chanInterrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// region Хранилища

	dbStore, err := dbStoreMod.NewDb(ctx, &dbStoreMod.ConfigDb{
		Log:    log,
		DbFile: cfg.Db.Filename,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// Без времени жизни кэш не создаётся, изображения не переживают запрос
	imageStore := memoryStoreMod.NewImagesIfEnabled(
		time.Duration(cfg.Pipeline.ImageCacheMinutes)*time.Minute, cfg.Pipeline.ImageCacheMaxItems)

	// endregion
	// region Сервисы

	eventSvc, err := eventsSvcMod.NewEvents(ctx, &eventsSvcMod.ConfigEvents{
		Log:     log,
		NatsURL: cfg.Events.NatsURL,
		Subject: cfg.Events.Subject,
	})
	if err != nil {
		return errors.Trace(err)
	}

	sourceSvc, err := sourceSvcMod.NewSource(ctx, &sourceSvcMod.ConfigSource{
		Log:            log,
		URL:            cfg.Source.URL,
		RequestTimeout: cfg.SourceTimeout(),
	})
	if err != nil {
		return errors.Trace(err)
	}

	sinkSvc, err := sinkSvcMod.NewSink(ctx, &sinkSvcMod.ConfigSink{
		Log:            log,
		Events:         eventSvc,
		BaseURL:        cfg.Sink.BaseURL,
		Path:           cfg.Sink.Path,
		RequestTimeout: cfg.SinkTimeout(),
	})
	if err != nil {
		return errors.Trace(err)
	}

	// Модели загружаются при первом обращении, отсутствие файла не мешает старту
	regionDetector, err := detectorSvcMod.NewRegion(ctx, &detectorSvcMod.ConfigRegion{
		Log:        log,
		ModelPath:  cfg.Roi.ModelPath,
		ClassNames: cfg.Roi.ClassNames,
		Confidence: cfg.Roi.Confidence,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer regionDetector.Close()

	keypointDetector, err := detectorSvcMod.NewKeypoint(ctx, &detectorSvcMod.ConfigKeypoint{
		Log:        log,
		ModelPath:  cfg.Angle.ModelPath,
		InferSize:  cfg.Angle.InferSize,
		Confidence: cfg.Angle.Confidence,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer keypointDetector.Close()

	// endregion
	// region Контроллеры

	roiCtl, err := roiCtlMod.NewRoi(ctx, regionDetector, &roiCtlMod.ConfigRoi{
		Log:         log,
		ClassName:   cfg.Roi.ClassName,
		InferWidth:  cfg.Roi.InferWidth,
		InferHeight: cfg.Roi.InferHeight,
	})
	if err != nil {
		return errors.Trace(err)
	}

	valveCtl, err := valveCtlMod.NewValve(ctx, keypointDetector, &valveCtlMod.ConfigValve{
		Log: log,
	})
	if err != nil {
		return errors.Trace(err)
	}

	ingestCtl, err := ingestCtlMod.NewIngest(ctx, sourceSvc, sinkSvc, eventSvc, &ingestCtlMod.ConfigIngest{
		Log:               log,
		Valve:             valveCtl,
		DbStore:           dbStore,
		Images:            imageStore,
		Mode:              cfg.Pipeline.Mode,
		TempMin:           cfg.Pipeline.TempMin,
		TempMax:           cfg.Pipeline.TempMax,
		MaxVectorLen:      cfg.Pipeline.MaxVectorLen,
		ProcessNonThermal: cfg.Pipeline.ProcessNonThermal,
		SideMap:           cfg.Pipeline.SideMap,
		DefaultEquipment:  cfg.Pipeline.DefaultEquipment,
		FieldName:         cfg.Sink.FieldName,
		BatchSize:         cfg.Sink.BatchSize,
	})
	if err != nil {
		return errors.Trace(err)
	}

	commandCtl, err := commandCtlMod.NewCommand(ctx, roiCtl, valveCtl, &commandCtlMod.ConfigCommand{
		Log:           log,
		Images:        imageStore,
		DbStore:       dbStore,
		ReturnOverlay: cfg.Angle.ReturnOverlay,
		Started:       started,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Сервис WEB

	webSvc, err := webSvcMod.NewWeb(ctx, ingestCtl, commandCtl, eventSvc, &webSvcMod.ConfigWeb{
		Log:              log,
		WebPort:          cfg.Http.Port,
		ApiKey:           cfg.Http.ApiKey,
		CorsAllowOrigins: cfg.Http.CorsAllowOrigins,
		Debug:            cfg.Debug,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Менеджер управления всеми

	managerCtl, err := manager.NewManager(ctx, &manager.ConfigManager{
		Log:               log,
		WebSvc:            webSvc,
		DbStore:           dbStore,
		EventSvc:          eventSvc,
		ArchiveDays:       cfg.Db.ArchiveDays,
		CleanBaseInterval: time.Minute * time.Duration(cfg.Db.CleanArchiveInterval),
	})
	if err != nil {
		return errors.Trace(err)
	}

	go func() {
		done <- managerCtl.Serve()
	}()

	// endregion

	// Процесс завершения работы
	select {
	case err := <-done:
		return errors.Trace(err)
	case <-chanInterrupt:
		log.Info("получена команда на завершение работы программы")
		cancel()
		select {
		case err := <-done:
			return errors.Trace(err)
		case <-time.After(10 * time.Second):
			return nil
		}
	}
}
