package config

import "time"

type (

	// Config конфигурация программы
	Config struct {

		// Режим отладки: подробности ошибок возвращаются клиенту
		Debug bool `default:"false"`

		// Описание логирования
		Log struct {

			// Путь к файлу лога
			Path string

			// Имя файла логирования
			Filename string `required:"true" default:"termovisor.log"`

			// Уровень логирования
			Level string `required:"true" default:"warning"`

			// Выводить лог только на консоль
			Console bool `default:"false"`
		}

		// Описываем подключение к базе данных журнала обработок
		Db struct {

			// Имя файла базы данных
			Filename string `required:"true" default:"termovisor.sqlite"`

			// Количество дней хранения журнала обработок
			ArchiveDays int `default:"30"`

			// Период очистки журнала в минутах
			CleanArchiveInterval int `default:"30"`
		}

		// Обслуживание WEB-сервера
		Http struct {

			// Порт WEB-сервера
			Port uint `required:"true" default:"8000"`

			// Ключ доступа к API (заголовок X-API-Key)
			ApiKey string `required:"true" default:"123"`

			// Разрешённые источники для CORS
			CorsAllowOrigins []string `default:"[http://localhost:8080]"`
		}

		// Источник изображений
		Source struct {

			// URL для GET-запроса коллекций
			URL string `required:"true" default:"http://localhost:9000/source"`

			// Таймаут запроса (в секундах)
			Timeout uint `default:"30"`
		}

		// Приёмник записей
		Sink struct {

			// Базовый адрес приёмника
			BaseURL string `required:"true" default:"http://localhost:9000/"`

			// Путь сервиса относительно BaseURL
			Path string `default:"rest/postthermaldata/v1/Data"`

			// Количество записей в одном POST
			BatchSize int `default:"26"`

			// Таймаут отправки одного пакета (в секундах)
			Timeout uint `default:"120"`

			// Имя поля с вектором температур
			FieldName string `default:"Temperature"`
		}

		// Параметры обработки изображений
		Pipeline struct {

			// Режим формирования записей: aggregated или flat
			Mode string `default:"aggregated"`

			// Температурный диапазон по умолчанию
			TempMin float64 `default:"98"`
			TempMax float64 `default:"550"`

			// Максимальная длина вектора температур
			MaxVectorLen int `default:"15000"`

			// Обрабатывать нетепловые изображения как тепловые
			ProcessNonThermal bool `default:"false"`

			// Таблица нормализации названий сторон
			SideMap map[string]string

			// Метка оборудования по умолчанию
			DefaultEquipment string `default:"Forno"`

			// Время жизни изображений в кэше для команд по image_id (в минутах).
			// 0 отключает кэш: изображения живут только в пределах одной обработки
			ImageCacheMinutes uint

			// Предельное количество изображений в кэше
			ImageCacheMaxItems int `default:"256"`
		}

		// Детектор области интереса
		Roi struct {

			// Путь к ONNX модели сегментации
			ModelPath string `default:"./assets/roi_model.onnx"`

			// Имена классов модели по порядку индексов
			ClassNames []string `default:"[extraction_roi]"`

			// Класс, по которому строится область
			ClassName string `default:"extraction_roi"`

			// Размер кадра для детектора
			InferWidth  int `default:"224"`
			InferHeight int `default:"224"`

			// Порог уверенности
			Confidence float64 `default:"0.25"`
		}

		// Детектор ключевых точек (стрелки задвижек)
		Angle struct {

			// Путь к ONNX модели ключевых точек
			ModelPath string `default:"./assets/angle_model.onnx"`

			// Размер кадра для детектора
			InferSize int `default:"640"`

			// Порог уверенности
			Confidence float64 `default:"0.25"`

			// Возвращать изображение с разметкой по умолчанию
			ReturnOverlay bool `default:"true"`
		}

		// Поток событий конвейера
		Events struct {

			// Адрес NATS. Если пустой, события в NATS не публикуются
			NatsURL string

			// Тема публикации
			Subject string `default:"termovisor.events"`
		}
	}
)

// SourceTimeout таймаут запроса к источнику
func (m Config) SourceTimeout() time.Duration {
	return time.Duration(m.Source.Timeout) * time.Second
}

// SinkTimeout таймаут отправки пакета в приёмник
func (m Config) SinkTimeout() time.Duration {
	return time.Duration(m.Sink.Timeout) * time.Second
}
